package domain

import "time"

// Variant is a concrete purchasable unit of a product, optionally tagged
// with one colour and one size. SKU is unique across all variants and
// stock never goes below zero.
type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	ColourID  *string   `json:"colour_id,omitempty"`
	SizeID    *string   `json:"size_id,omitempty"`
	SKU       string    `json:"sku"`
	Stock     int64     `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Populated only when the caller asks for the relation.
	Product *Product `json:"product,omitempty"`
	Colour  *Colour  `json:"colour,omitempty"`
	Size    *Size    `json:"size,omitempty"`
}
