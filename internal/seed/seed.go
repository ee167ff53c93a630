// Package seed installs the shared reference data the catalog expects:
// a baseline set of categories, colours and sizes. Rows carry fixed ids,
// so re-running the seed is a no-op for anything already present.
package seed

import (
	"context"
	"fmt"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/store"
)

func strPtr(s string) *string { return &s }

var categories = []domain.Category{
	{ID: "cat-pakaian", Name: "Pakaian", Type: strPtr("fashion")},
	{ID: "cat-sepatu", Name: "Sepatu", Type: strPtr("fashion")},
	{ID: "cat-aksesoris", Name: "Aksesoris", Type: strPtr("fashion")},
	{ID: "cat-elektronik", Name: "Elektronik", Type: strPtr("gadget")},
}

var colours = []domain.Colour{
	{ID: "col-merah", Name: "Merah", Hex: strPtr("#ff0000")},
	{ID: "col-hitam", Name: "Hitam", Hex: strPtr("#000000")},
	{ID: "col-putih", Name: "Putih", Hex: strPtr("#ffffff")},
	{ID: "col-biru", Name: "Biru", Hex: strPtr("#0000ff")},
}

var sizes = []domain.Size{
	{ID: "siz-s", Name: "S"},
	{ID: "siz-m", Name: "M"},
	{ID: "siz-l", Name: "L"},
	{ID: "siz-xl", Name: "XL"},
}

// Run inserts the reference rows that are not present yet and reports how
// many were added.
func Run(ctx context.Context, s *store.Store) (int64, error) {
	var total int64
	n, err := s.CreateCategories(ctx, categories, true)
	if err != nil {
		return total, fmt.Errorf("seed: categories: %w", err)
	}
	total += n
	n, err = s.CreateColours(ctx, colours, true)
	if err != nil {
		return total, fmt.Errorf("seed: colours: %w", err)
	}
	total += n
	n, err = s.CreateSizes(ctx, sizes, true)
	if err != nil {
		return total, fmt.Errorf("seed: sizes: %w", err)
	}
	total += n
	return total, nil
}
