package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/bizstore/internal/docsync"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Lister returns the merged activity trail, newest first.
type Lister interface {
	List(ctx context.Context) ([]Entry, docsync.Source, error)
}

// Service filters and pages the activity trail.
type Service struct {
	trail Lister
}

// NewService builds the timeline service.
func NewService(trail Lister) *Service {
	return &Service{trail: trail}
}

// Timeline returns one page of entries matching filters.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	rows, err := s.Export(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset > len(rows) {
		offset = len(rows)
	}
	end := min(offset+pageSize, len(rows))
	hasNext := end < len(rows)

	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows[offset:end], Paging: paging}, nil
}

// Export returns every entry matching filters without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.trail == nil {
		return nil, fmt.Errorf("audit: trail not configured")
	}
	all, _, err := s.trail.List(ctx)
	if err != nil {
		return nil, err
	}
	actor := strings.TrimSpace(filters.Actor)
	module := strings.TrimSpace(filters.Module)
	action := strings.TrimSpace(filters.Action)
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if !filters.From.IsZero() && e.Timestamp.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && e.Timestamp.After(filters.To) {
			continue
		}
		if actor != "" && !strings.EqualFold(e.Actor, actor) && e.ActorID != actor {
			continue
		}
		if module != "" && !strings.EqualFold(e.Module, module) {
			continue
		}
		if action != "" && !strings.EqualFold(string(e.Action), action) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteCSV serialises entries as CSV.
func WriteCSV(w io.Writer, rows []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Timestamp", "User", "Action", "Module", "Description"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Actor,
			string(row.Action),
			row.Module,
			row.Description,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
