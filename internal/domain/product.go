package domain

import "time"

// Product is a sellable item belonging to one merchant and optionally one
// category. A product with HasVariant set expands into purchasable variants;
// otherwise it is sold as-is.
type Product struct {
	ID          string    `json:"id"`
	MerchantID  string    `json:"merchant_id"`
	CategoryID  *string   `json:"category_id,omitempty"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Discount    *float64  `json:"discount,omitempty"`
	Description *string   `json:"description,omitempty"`
	HasVariant  bool      `json:"has_variant"`
	Weight      *float64  `json:"weight,omitempty"`
	Avatar      *string   `json:"avatar,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Populated only when the caller asks for the relation.
	Merchant     *Merchant `json:"merchant,omitempty"`
	Category     *Category `json:"category,omitempty"`
	Variants     []Variant `json:"variants,omitempty"`
	VariantCount *int64    `json:"variant_count,omitempty"`
}
