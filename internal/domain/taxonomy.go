package domain

import "time"

// Category classifies products. Categories are shared reference data:
// many products may point at the same category, none own it.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      *string   `json:"type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProductCount *int64 `json:"product_count,omitempty"`
}

// Colour is a shared attribute dimension reused across variants.
type Colour struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hex       *string   `json:"hex,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	VariantCount *int64 `json:"variant_count,omitempty"`
}

// Size is a shared attribute dimension reused across variants.
// The physical dimensions are optional.
type Size struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Length    *float64  `json:"length,omitempty"`
	Height    *float64  `json:"height,omitempty"`
	Width     *float64  `json:"width,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	VariantCount *int64 `json:"variant_count,omitempty"`
}
