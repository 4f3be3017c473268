// Package partition maps logical collections onto physical document keys.
//
// Collections whose membership grows without bound are split by a scaling key
// (sales by calendar year, conversation logs by client) so no single document
// approaches the store size ceiling. Everything else is one document named
// after the collection. All functions are pure.
package partition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Collection names a logical collection.
type Collection string

const (
	Clients       Collection = "clients"
	Inventory     Collection = "inventory"
	Quotes        Collection = "quotes"
	Projects      Collection = "projects"
	AuditLogs     Collection = "audit_logs"
	FinanceShifts Collection = "finance_shifts"
	Categories    Collection = "categories"
	Settings      Collection = "settings"
	Users         Collection = "users"
	Calendar      Collection = "calendar"
	// Sales is sharded by year.
	Sales Collection = "sales"
	// Chat is sharded by client id.
	Chat Collection = "chat"
)

// LegacySalesKey is the unpartitioned mirror of every sale kept for older readers.
const LegacySalesKey = "sales_history"

var (
	// ErrUnknownCollection is returned for names outside the known set.
	ErrUnknownCollection = errors.New("partition: unknown collection")
	// ErrMissingScope is returned when a sharded collection lacks its scaling key.
	ErrMissingScope = errors.New("partition: missing shard scope")
)

var singleDocument = map[Collection]struct{}{
	Clients:       {},
	Inventory:     {},
	Quotes:        {},
	Projects:      {},
	AuditLogs:     {},
	FinanceShifts: {},
	Categories:    {},
	Settings:      {},
	Users:         {},
	Calendar:      {},
}

var (
	salesShardPattern = regexp.MustCompile(`^sales_(\d{4})$`)
	chatPattern       = regexp.MustCompile(`^chat_([A-Za-z0-9-]+)$`)
	clientIDPattern   = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// Context carries the scaling keys used by sharded collections.
type Context struct {
	Year     int
	ClientID string
}

// Key resolves the physical document key for a collection in a context.
func Key(c Collection, pc Context) (string, error) {
	switch c {
	case Sales:
		if pc.Year < 1 || pc.Year > 9999 {
			return "", fmt.Errorf("%w: sales needs a 4-digit year", ErrMissingScope)
		}
		return SalesShard(pc.Year), nil
	case Chat:
		if !clientIDPattern.MatchString(pc.ClientID) {
			return "", fmt.Errorf("%w: chat needs a client id", ErrMissingScope)
		}
		return ChatLog(pc.ClientID), nil
	}
	if _, ok := singleDocument[c]; ok {
		return string(c), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

// MustKey is Key for single-document collections known at compile time.
func MustKey(c Collection) string {
	key, err := Key(c, Context{})
	if err != nil {
		panic(err)
	}
	return key
}

// SalesShard returns the shard key for a calendar year.
func SalesShard(year int) string {
	return fmt.Sprintf("sales_%04d", year)
}

// SalesForDate returns the shard key a sale dated t belongs to.
func SalesForDate(t time.Time) string {
	return SalesShard(t.Year())
}

// ChatLog returns the conversation document key for a client.
func ChatLog(clientID string) string {
	return "chat_" + clientID
}

// IsSharded reports whether the collection is split across several keys.
func IsSharded(c Collection) bool {
	return c == Sales || c == Chat
}

// Resolve parses a physical key back into its collection and context.
func Resolve(key string) (Collection, Context, error) {
	if key == LegacySalesKey {
		return Sales, Context{}, nil
	}
	if m := salesShardPattern.FindStringSubmatch(key); m != nil {
		year, _ := strconv.Atoi(m[1])
		return Sales, Context{Year: year}, nil
	}
	if m := chatPattern.FindStringSubmatch(key); m != nil {
		return Chat, Context{ClientID: m[1]}, nil
	}
	c := Collection(key)
	if _, ok := singleDocument[c]; ok {
		return c, Context{}, nil
	}
	return "", Context{}, fmt.Errorf("%w: key %q", ErrUnknownCollection, key)
}

// ValidateKey rejects keys that no collection maps to.
func ValidateKey(key string) error {
	_, _, err := Resolve(key)
	return err
}
