package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project is a job tracked for a client.
type Project struct {
	ID       string          `json:"id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	ClientID string          `json:"clientId,omitempty"`
	Client   string          `json:"client,omitempty"`
	Status   string          `json:"status,omitempty"`
	Budget   decimal.Decimal `json:"budget"`
	DueDate  *time.Time      `json:"dueDate,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

func (p Project) RecordID() string { return p.ID }

// ProjectInput creates or edits a project.
type ProjectInput struct {
	Name     string          `json:"name" validate:"required,max=200"`
	ClientID string          `json:"clientId"`
	Client   string          `json:"client" validate:"max=200"`
	Status   string          `json:"status" validate:"omitempty,oneof=Planning Active Done Cancelled"`
	Budget   decimal.Decimal `json:"budget"`
	DueDate  *time.Time      `json:"dueDate"`
	Notes    string          `json:"notes"`
}

// Event is a calendar entry.
type Event struct {
	ID       string    `json:"id" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay,omitempty"`
	ClientID string    `json:"clientId,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

func (e Event) RecordID() string { return e.ID }

// EventInput creates or edits an event.
type EventInput struct {
	Title    string    `json:"title" validate:"required,max=200"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay"`
	ClientID string    `json:"clientId"`
	Notes    string    `json:"notes"`
}

// Category groups inventory items and expenses.
type Category struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Color string `json:"color,omitempty"`
}

func (c Category) RecordID() string { return c.ID }

// CategoryInput creates or edits a category.
type CategoryInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// SettingsID is the id of the single settings record.
const SettingsID = "app"

// Settings are the business-wide preferences.
type Settings struct {
	ID           string          `json:"id" validate:"required"`
	BusinessName string          `json:"businessName"`
	TaxID        string          `json:"taxId,omitempty"`
	Address      string          `json:"address,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	TaxRate      decimal.Decimal `json:"taxRate"`
	QuoteFooter  string          `json:"quoteFooter,omitempty"`
}

func (s Settings) RecordID() string { return s.ID }

// Role is a user privilege level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// User is a device operator identified by a PIN.
type User struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Role      Role      `json:"role" validate:"omitempty,oneof=admin staff"`
	PINHash   string    `json:"pinHash"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) RecordID() string { return u.ID }

// Normalize defaults a missing role to staff.
func (u *User) Normalize() {
	if u.Role == "" {
		u.Role = RoleStaff
	}
}

// UserInput creates a user.
type UserInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Role Role   `json:"role" validate:"required,oneof=admin staff"`
	PIN  string `json:"pin" validate:"required,numeric,min=4,max=8"`
}
