package domain

import "time"

// Merchant statuses. New merchants default to MerchantStatusActive.
const (
	MerchantStatusActive  = "active"
	MerchantStatusPending = "pending"
)

// Merchant is a seller profile bound to exactly one user.
type Merchant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Avatar    *string   `json:"avatar,omitempty"`
	Type      *string   `json:"type,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Populated only when the caller asks for the relation.
	User         *User     `json:"user,omitempty"`
	Products     []Product `json:"products,omitempty"`
	ProductCount *int64    `json:"product_count,omitempty"`
}
