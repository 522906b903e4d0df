package model

import (
	"time"

	"github.com/google/uuid"
)

// Category is the product family a tracked item belongs to.
type Category string

const (
	CategoryPharmaceutical Category = "pharmaceutical"
	CategoryFood           Category = "food"
	CategoryElectronics    Category = "electronics"
	CategoryTextiles       Category = "textiles"
	CategoryAutomotive     Category = "automotive"
)

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPharmaceutical, CategoryFood, CategoryElectronics, CategoryTextiles, CategoryAutomotive:
		return true
	}
	return false
}

// ProductStatus is derived from the latest block of a product's chain.
type ProductStatus string

const (
	StatusInTransit ProductStatus = "in_transit"
	StatusDelivered ProductStatus = "delivered"
)

// Product is a tracked physical item together with its custody chain.
// Apart from ReadOnly and the derived Status, a product never changes after
// creation; custody is recorded exclusively by appending blocks.
type Product struct {
	ID              uuid.UUID     `json:"id"                     db:"id"`
	Name            string        `json:"name"                   db:"name"`
	Category        Category      `json:"category"               db:"category"`
	Origin          string        `json:"origin"                 db:"origin"`
	BatchNumber     string        `json:"batch_number,omitempty" db:"batch_number"`
	Manufacturer    string        `json:"manufacturer"           db:"manufacturer"`
	CreatorVerified bool          `json:"creator_verified"       db:"creator_verified"`
	CreatedBy       string        `json:"created_by"             db:"created_by"`
	CreatedAt       time.Time     `json:"created_at"             db:"created_at"`
	ReadOnly        bool          `json:"read_only"              db:"read_only"`
	Status          ProductStatus `json:"status"                 db:"-"`

	// LatestStage is the stage of the most recent block. Status derives from it.
	LatestStage Stage   `json:"latest_stage"    db:"-"`
	Chain       []Block `json:"chain,omitempty" db:"-"`
}

// SetLatestStage records the tail stage and recomputes Status.
func (p *Product) SetLatestStage(s Stage) {
	p.LatestStage = s
	if s == StageDelivered {
		p.Status = StatusDelivered
		return
	}
	p.Status = StatusInTransit
}

// Clone returns a deep copy so callers can never reach into stored chains.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Chain != nil {
		cp.Chain = make([]Block, len(p.Chain))
		for i := range p.Chain {
			cp.Chain[i] = p.Chain[i].Clone()
		}
	}
	return &cp
}

// Summary returns a copy without the chain.
func (p *Product) Summary() *Product {
	cp := *p
	cp.Chain = nil
	return &cp
}
