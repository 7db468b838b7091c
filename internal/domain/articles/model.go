package articles

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeSupply  Type = "SUPPLY"  // feed, medicine, packaging
	TypeProduct Type = "PRODUCT" // eggs, packaged goods
	TypeService Type = "SERVICE"
)

type Article struct {
	ID                int64
	Name              string
	Type              Type
	Unit              string
	ControlsStock     bool
	Balance           decimal.Decimal
	MinThreshold      decimal.Decimal
	ReferencePrice    decimal.Decimal
	IsRecipeComponent bool
	CreatedAt         time.Time
}

// RecipeRow maps one component of a bundle article ("pack"), e.g. a dozen
// eggs = 12 x egg + 1 x carton. Selling the bundle deducts components only.
type RecipeRow struct {
	ID          int64
	BundleID    int64
	ComponentID int64
	QtyPerUnit  decimal.Decimal
}
