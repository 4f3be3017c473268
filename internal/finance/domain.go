package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShiftStatus is the cash register session state.
type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "Open"
	ShiftClosed ShiftStatus = "Closed"
)

// TransactionKind separates cash in from cash out.
type TransactionKind string

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

// Transaction is an immutable cash movement within a shift.
type Transaction struct {
	ID          string          `json:"id" validate:"required"`
	Kind        TransactionKind `json:"type" validate:"oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	At          time.Time       `json:"timestamp"`
}

// Correction records a privileged change to a closed shift.
type Correction struct {
	By                  string          `json:"by"`
	At                  time.Time       `json:"at"`
	Reason              string          `json:"reason"`
	PreviousFinalAmount decimal.Decimal `json:"previousFinalAmount"`
}

// CashShift is one cash register session. Once closed its financial fields
// only change through CorrectShift.
type CashShift struct {
	ID            string          `json:"id" validate:"required"`
	Status        ShiftStatus     `json:"status" validate:"oneof=Open Closed"`
	OpenedBy      string          `json:"openedBy"`
	OpenedAt      time.Time       `json:"openedAt"`
	InitialAmount decimal.Decimal `json:"initialAmount"`
	Transactions  []Transaction   `json:"transactions" validate:"dive"`

	ClosedBy     string           `json:"closedBy,omitempty"`
	ClosedAt     *time.Time       `json:"closedAt,omitempty"`
	FinalAmount  *decimal.Decimal `json:"finalAmount,omitempty"`
	SystemAmount *decimal.Decimal `json:"systemAmount,omitempty"`
	Difference   *decimal.Decimal `json:"difference,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Corrections  []Correction     `json:"corrections,omitempty"`
}

// RecordID implements docsync.Record.
func (s CashShift) RecordID() string { return s.ID }

// Expected is the cash the register should hold: the float plus income
// minus expenses.
func (s CashShift) Expected() decimal.Decimal {
	total := s.InitialAmount
	for _, tr := range s.Transactions {
		switch tr.Kind {
		case Income:
			total = total.Add(tr.Amount)
		case Expense:
			total = total.Sub(tr.Amount)
		}
	}
	return total
}

// OpenInput starts a shift.
type OpenInput struct {
	InitialAmount decimal.Decimal `json:"initialAmount"`
}

// TransactionInput registers a movement.
type TransactionInput struct {
	Kind        TransactionKind `json:"type" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"max=50"`
	Description string          `json:"description" validate:"required,max=300"`
	Reference   string          `json:"reference" validate:"max=100"`
}

// CloseInput ends a shift with the counted cash.
type CloseInput struct {
	FinalAmount decimal.Decimal `json:"finalAmount"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

// CorrectionInput amends a closed shift.
type CorrectionInput struct {
	FinalAmount decimal.Decimal `json:"finalAmount"`
	Reason      string          `json:"reason" validate:"required,max=500"`
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
