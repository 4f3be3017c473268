package audit

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

type stubTrail struct {
	entries []Entry
}

func (s stubTrail) List(context.Context) ([]Entry, docsync.Source, error) {
	return s.entries, docsync.SourceRemote, nil
}

func trail(n int) stubTrail {
	base := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		module := "sales"
		if i%2 == 1 {
			module = "inventory"
		}
		out = append(out, Entry{
			ID:        fmt.Sprint(i),
			Action:    shared.AuditUpdate,
			Module:    module,
			Actor:     "Ana",
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return stubTrail{entries: out}
}

func TestServiceTimelinePaging(t *testing.T) {
	svc := NewService(trail(3))
	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, defaultPageSize, result.Paging.PageSize)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	svc := NewService(trail(60))
	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, result.Rows, maxPageSize)
}

func TestServiceExportFilters(t *testing.T) {
	svc := NewService(trail(6))
	rows, err := svc.Export(context.Background(), TimelineFilters{Module: "Inventory"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	from := time.Date(2024, 3, 30, 22, 0, 0, 0, time.UTC)
	rows, err = svc.Export(context.Background(), TimelineFilters{From: from, Action: "update", Actor: "ana"})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = svc.Export(context.Background(), TimelineFilters{Action: "Delete"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, trail(1).entries))
	assert.Equal(t, "Timestamp,User,Action,Module,Description\n2024-03-31T00:00:00Z,Ana,Update,sales,\n", buf.String())
}
