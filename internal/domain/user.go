package domain

import "time"

// User is an account that can own any number of merchants.
// Username is unique across all users.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Fullname  string     `json:"fullname"`
	Gender    *string    `json:"gender,omitempty"`
	Birth     *time.Time `json:"birth,omitempty"`
	Address   *string    `json:"address,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Avatar    *string    `json:"avatar,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Populated only when the caller asks for the relation.
	Merchants     []Merchant `json:"merchants,omitempty"`
	MerchantCount *int64     `json:"merchant_count,omitempty"`
}
