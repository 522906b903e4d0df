package model

// Role is the business role of an account in the identity registry.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
	RoleAdmin        Role = "admin"
	RoleCustomer     Role = "customer"
)

// Account is an identity supplied by the external identity registry.
// The ledger reads accounts but never stores them. A nil *Account is a guest.
type Account struct {
	ID            string `json:"id"                       db:"id"`
	Username      string `json:"username"                 db:"username"`
	Role          Role   `json:"role"                     db:"role"`
	Verified      bool   `json:"verified"                 db:"verified"`
	Company       string `json:"company"                  db:"company"`
	LicenseNumber string `json:"license_number,omitempty" db:"license_number"`
}

// ActorID returns the account id, or "guest" for a nil account.
func (a *Account) ActorID() string {
	if a == nil {
		return "guest"
	}
	return a.ID
}

// DisplayName is the name recorded as a block handler.
func (a *Account) DisplayName() string {
	if a == nil {
		return "guest"
	}
	if a.Username != "" {
		return a.Username
	}
	return a.ID
}
