package clients

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Client is a customer record.
type Client struct {
	ID        string    `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Company   string    `json:"company,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	TaxID     string    `json:"taxId,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordID implements docsync.Record.
func (c Client) RecordID() string { return c.ID }

// Input creates or edits a client.
type Input struct {
	Name    string `json:"name" validate:"required,max=200"`
	Company string `json:"company" validate:"max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=300"`
	TaxID   string `json:"taxId" validate:"max=50"`
	Notes   string `json:"notes"`
}

// Message is one entry of a client's conversation log.
type Message struct {
	ID       string    `json:"id" validate:"required"`
	ClientID string    `json:"clientId"`
	Author   string    `json:"author"`
	Text     string    `json:"text" validate:"required"`
	SentAt   time.Time `json:"timestamp"`
}

// RecordID implements docsync.Record.
func (m Message) RecordID() string { return m.ID }

// MessageInput appends to a conversation.
type MessageInput struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// reference is the part of a quote or project that points at a client.
type reference struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
	Client   string `json:"client"`
}

func (r reference) RecordID() string { return r.ID }

func (r reference) points(c Client) bool {
	if r.ClientID != "" {
		return r.ClientID == c.ID
	}
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(r.Client)) == fold.String(strings.TrimSpace(c.Name))
}
