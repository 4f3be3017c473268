package sales

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bizstore/internal/inventory"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// ============================================================================
// LINE ITEMS & AMOUNTS
// ============================================================================

// LineItem is one quoted or sold line.
type LineItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// Amounts are the computed money fields shared by quotes and sales.
type Amounts struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// ComputeAmounts prices lines and applies total = subtotal*(1-discount%)+tax.
// Line totals are filled in place.
func ComputeAmounts(lines []LineItem, discountPercent, tax decimal.Decimal) Amounts {
	subtotal := decimal.Zero
	for i := range lines {
		lines[i].Total = lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
		subtotal = subtotal.Add(lines[i].Total)
	}
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return Amounts{
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		Tax:             tax,
		Total:           subtotal.Mul(factor).Add(tax).Round(2),
	}
}

func inventoryLines(items []LineItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{Name: it.Description, Quantity: it.Quantity})
	}
	return out
}

// ============================================================================
// QUOTE
// ============================================================================

// QuoteStatus is the quote lifecycle state.
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "Draft"
	QuoteApproved QuoteStatus = "Approved"
)

// Quote is an offer to a client. Approved quotes are immutable.
type Quote struct {
	ID         string     `json:"id" validate:"required"`
	ClientID   string     `json:"clientId,omitempty"`
	ClientName string     `json:"client"`
	Items      []LineItem `json:"items" validate:"dive"`
	Amounts
	Status    QuoteStatus `json:"status" validate:"omitempty,oneof=Draft Approved"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"date"`
	UpdatedAt time.Time   `json:"updatedAt,omitempty"`
}

// RecordID implements docsync.Record.
func (q Quote) RecordID() string { return q.ID }

// Normalize treats quotes written without a status as drafts.
func (q *Quote) Normalize() {
	if q.Status == "" {
		q.Status = QuoteDraft
	}
}

// GuardQuotes checks a whole-list replacement of the quotes document. Approved
// quotes may not change or disappear, and a quote only becomes Approved
// through conversion.
func GuardQuotes(current, next []Quote) error {
	approved := make(map[string]Quote)
	for _, q := range current {
		if q.Status == QuoteApproved {
			approved[q.ID] = q
		}
	}
	kept := make(map[string]struct{}, len(approved))
	for _, q := range next {
		prev, ok := approved[q.ID]
		if !ok {
			if q.Status == QuoteApproved {
				return shared.NewValidationError("status", "quote %s can only be approved by conversion", q.ID)
			}
			continue
		}
		same, err := sameQuote(prev, q)
		if err != nil {
			return err
		}
		if !same {
			return shared.NewValidationError("status", "quote %s is already approved", q.ID)
		}
		kept[q.ID] = struct{}{}
	}
	for id := range approved {
		if _, ok := kept[id]; !ok {
			return shared.NewValidationError("status", "quote %s is already approved", id)
		}
	}
	return nil
}

func sameQuote(a, b Quote) (bool, error) {
	ra, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ra, rb), nil
}

// QuoteID formats COT-<year>-<seq>.
func QuoteID(year, seq int) string {
	return fmt.Sprintf("COT-%04d-%04d", year, seq)
}

// nextQuoteSeq returns one past the highest sequence used in year.
func nextQuoteSeq(quotes []Quote, year int) int {
	prefix := fmt.Sprintf("COT-%04d-", year)
	highest := 0
	for _, q := range quotes {
		rest, ok := strings.CutPrefix(q.ID, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// QuoteInput creates or edits a draft quote.
type QuoteInput struct {
	ClientID        string          `json:"clientId"`
	ClientName      string          `json:"client" validate:"required,max=200"`
	Items           []LineInput     `json:"items" validate:"required,min=1,dive"`
	DiscountPercent decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	Notes           string          `json:"notes"`
}

// LineInput is a requested line.
type LineInput struct {
	Description string          `json:"description" validate:"required,max=300"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (in QuoteInput) lines() []LineItem {
	out := make([]LineItem, 0, len(in.Items))
	for _, l := range in.Items {
		out = append(out, LineItem{Description: strings.TrimSpace(l.Description), Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return out
}

// ============================================================================
// SALE
// ============================================================================

// PaymentStatus is derived from the outstanding balance.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPartial PaymentStatus = "Partial"
	PaymentPaid    PaymentStatus = "Paid"
)

// Payment is one installment received against a sale.
type Payment struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty"`
	Date   time.Time       `json:"date"`
}

// Sale is a confirmed transaction, stored in its year shard and mirrored to
// the legacy history document.
type Sale struct {
	ID         string     `json:"id" validate:"required"`
	QuoteID    string     `json:"quoteId,omitempty"`
	ClientID   string     `json:"clientId,omitempty"`
	ClientName string     `json:"client"`
	Items      []LineItem `json:"items" validate:"dive"`
	Amounts
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	Balance       decimal.Decimal `json:"balance"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Payments      []Payment       `json:"payments,omitempty"`
	Date          time.Time       `json:"date"`
}

// RecordID implements docsync.Record.
func (s Sale) RecordID() string { return s.ID }

// Normalize recomputes the balance and payment status.
func (s *Sale) Normalize() {
	s.Balance = s.Total.Sub(s.AmountPaid)
	s.PaymentStatus = PaymentStatusFor(s.Total, s.AmountPaid)
}

// PaymentStatusFor derives the status from what was paid against total.
func PaymentStatusFor(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentPending
	case total.Sub(paid).IsPositive():
		return PaymentPartial
	default:
		return PaymentPaid
	}
}

// NewSaleID formats VTA-<year>-<6-digit ms suffix>-<3-char random>.
func NewSaleID(at time.Time) string {
	suffix := at.UnixMilli() % 1_000_000
	random := strings.ToUpper(uuid.NewString()[:3])
	return fmt.Sprintf("VTA-%04d-%06d-%s", at.Year(), suffix, random)
}

// YearFromSaleID extracts the shard year from a sale id.
func YearFromSaleID(id string) (int, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 || parts[0] != "VTA" || len(parts[1]) != 4 {
		return 0, fmt.Errorf("sales: malformed sale id %q", id)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("sales: malformed sale id %q: %w", id, err)
	}
	return year, nil
}

func saleFromQuote(q Quote, at time.Time) Sale {
	sale := Sale{
		ID:         NewSaleID(at),
		QuoteID:    q.ID,
		ClientID:   q.ClientID,
		ClientName: q.ClientName,
		Items:      append([]LineItem(nil), q.Items...),
		Amounts:    q.Amounts,
		AmountPaid: decimal.Zero,
		Date:       at,
	}
	sale.Normalize()
	return sale
}

// PaymentInput registers an installment.
type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"max=50"`
}
