package audit

import (
	"time"

	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Entry is one line of the activity trail.
type Entry struct {
	ID          string             `json:"id" validate:"required"`
	Action      shared.AuditAction `json:"action" validate:"oneof=Create Update Delete"`
	Module      string             `json:"module" validate:"required"`
	Description string             `json:"description"`
	Actor       string             `json:"user"`
	ActorID     string             `json:"userId,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// RecordID implements docsync.Record.
func (e Entry) RecordID() string { return e.ID }

// TimelineFilters narrows the activity trail.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Module   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"hasNext"`
	PageSize int  `json:"pageSize"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps one timeline page.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
