package inventory

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Kind separates depletable goods from services.
type Kind string

const (
	// KindProduct is a stocked good depleted by sales.
	KindProduct Kind = "product"
	// KindService is never depleted.
	KindService Kind = "service"
)

// Status is the stock tier shown next to each item.
type Status string

const (
	StatusInStock  Status = "In Stock"
	StatusLowStock Status = "Low Stock"
	StatusCritical Status = "Critical"
)

// ErrInvalidQuantity indicates an adjustment that makes no sense.
var ErrInvalidQuantity = errors.New("inventory: invalid quantity")

// Item is one stocked record of the inventory document.
type Item struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Kind      Kind            `json:"type" validate:"omitempty,oneof=product service"`
	Category  string          `json:"category,omitempty"`
	Unit      string          `json:"unit,omitempty"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	MinStock  int             `json:"minStock" validate:"gte=0"`
	UnitPrice decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
}

// RecordID implements docsync.Record.
func (i Item) RecordID() string { return i.ID }

// Depletable reports whether sales reduce the item's quantity.
func (i Item) Depletable() bool { return i.Kind == KindProduct }

// Normalize migrates legacy records: a missing kind means product and
// negative quantities written by older clients clamp to zero.
func (i *Item) Normalize() {
	if i.Kind == "" {
		i.Kind = KindProduct
	}
	if i.Quantity < 0 {
		i.Quantity = 0
	}
	if i.MinStock < 0 {
		i.MinStock = 0
	}
	i.Status = StatusFor(i.Quantity, i.MinStock)
}

// StatusFor returns the tier for quantity against minStock.
func StatusFor(quantity, minStock int) Status {
	switch {
	case quantity <= 0:
		return StatusCritical
	case quantity <= minStock:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// MatchKey is the name form used to match sale lines to items.
func MatchKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Line is a sold quantity of a named item.
type Line struct {
	Name     string
	Quantity int
}

// ApplySale depletes stock for lines and returns the updated list. The input
// is not modified. Lines without a matching depletable item are ignored and
// quantities never drop below zero.
func ApplySale(items []Item, lines []Line) []Item {
	out := append([]Item(nil), items...)
	index := make(map[string]int, len(out))
	for i := range out {
		key := MatchKey(out[i].Name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	for _, line := range lines {
		i, ok := index[MatchKey(line.Name)]
		if !ok || !out[i].Depletable() || line.Quantity <= 0 {
			continue
		}
		out[i].Quantity = max(0, out[i].Quantity-line.Quantity)
		out[i].Status = StatusFor(out[i].Quantity, out[i].MinStock)
	}
	return out
}
