package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleHotelier = "HOTELIER"
)

// User mirrors the users table.  Customers book rooms, hoteliers own
// hotels and receive transfers through their connected payment account.
//
// Fields:
//
//	ID                 – auto-increment primary key.
//	Email              – unique, lower-cased login.
//	PasswordHash       – bcrypt hash.
//	Role               – CUSTOMER or HOTELIER.
//	GatewayCustomerRef – payment gateway customer id (customers, nullable).
//	ConnectAccount     – connected account id (hoteliers, nullable).
type User struct {
	ID                 uint64    // users.id
	Email              string    // users.email
	PasswordHash       string    // users.password_hash
	Role               string    // users.role
	GatewayCustomerRef *string   // users.gateway_customer_ref (nullable)
	ConnectAccount     *string   // users.connect_account (nullable)
	CreatedAt          time.Time // users.created_at
	UpdatedAt          time.Time // users.updated_at
}

// Principal is the authenticated caller as seen by authorization checks.
type Principal struct {
	UserID uint64
	Role   string
}

func (p Principal) IsCustomer() bool { return p.Role == RoleCustomer }
func (p Principal) IsHotelier() bool { return p.Role == RoleHotelier }

// ProvisionResult reports which payment gateway records were created for
// a freshly registered user.  Exactly one of the refs is set on success.
type ProvisionResult struct {
	GatewayCustomerRef *string `json:"gateway_customer_ref,omitempty"`
	ConnectAccount     *string `json:"connect_account,omitempty"`
	OnboardingURL      string  `json:"onboarding_url,omitempty"`
	Error              string  `json:"error,omitempty"`
}
