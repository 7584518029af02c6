package domain

import (
	"math"
	"time"
)

// Day is the length of one shelf-life day in milliseconds.
const Day = int64(24 * time.Hour / time.Millisecond)

// MaxShelfLifeDays bounds shelf life to a century so expiry arithmetic cannot overflow.
const MaxShelfLifeDays = 36500

// GroceryItem is a stored grocery row. Dates are milliseconds since the Unix epoch.
type GroceryItem struct {
	ID                  int64  `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	Quantity            int64  `db:"quantity" json:"quantity"`
	PurchaseDate        int64  `db:"purchase_date" json:"purchaseDate"`
	EstimatedExpiryDate int64  `db:"estimated_expiry_date" json:"estimatedExpiryDate"`
}

// ExpiryFrom returns the expiry timestamp for a purchase made at purchaseDate.
func ExpiryFrom(purchaseDate int64, shelfLifeDays int) int64 {
	return purchaseDate + int64(shelfLifeDays)*Day
}

// DaysRemaining rounds the time left until expiry up to whole days; zero or less means expired.
func (g GroceryItem) DaysRemaining(now time.Time) int {
	diff := g.EstimatedExpiryDate - now.UnixMilli()
	return int(math.Ceil(float64(diff) / float64(Day)))
}
