package model

import "time"

// Stage is the custody phase a checkpoint represents.
type Stage string

const (
	StageCreated       Stage = "created"
	StageManufacturing Stage = "manufacturing"
	StageQualityCheck  Stage = "quality_check"
	StageWarehouse     Stage = "warehouse"
	StageDistribution  Stage = "distribution"
	StageRetail        Stage = "retail"
	StageDelivered     Stage = "delivered"
)

// GenesisPreviousHash is the previous-hash sentinel carried by block 0.
const GenesisPreviousHash = "0"

// GPS is a resolved device fix. Accuracy is the radius in metres.
type GPS struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// Block is one immutable checkpoint in a product's chain.
type Block struct {
	BlockNumber  int       `json:"block_number"        db:"block_number"`
	Stage        Stage     `json:"stage"               db:"stage"`
	Location     string    `json:"location"            db:"location"`
	Handler      string    `json:"handler"             db:"handler"`
	Notes        string    `json:"notes,omitempty"     db:"notes"`
	GPS          *GPS      `json:"gps,omitempty"       db:"gps"`
	PhotoRef     string    `json:"photo_ref,omitempty" db:"photo_ref"`
	Timestamp    time.Time `json:"timestamp"           db:"timestamp"`
	PreviousHash string    `json:"previous_hash"       db:"previous_hash"`
	Hash         string    `json:"hash"                db:"hash"`
}

// Clone copies the block including its GPS fix.
func (b Block) Clone() Block {
	if b.GPS != nil {
		g := *b.GPS
		b.GPS = &g
	}
	return b
}
