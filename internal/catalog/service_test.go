package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bizstore/internal/docsync/docsynctest"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

func newTestService(t *testing.T) (*Service, *docsynctest.Harness, *docsynctest.AuditSpy) {
	t.Helper()
	h := docsynctest.New(t)
	spy := &docsynctest.AuditSpy{}
	return NewService(h.Sync, spy, h.Logger), h, spy
}

func TestProjectCRUD(t *testing.T) {
	svc, _, spy := newTestService(t)
	ctx := context.Background()

	p, err := svc.SaveProject(ctx, "", ProjectInput{Name: "Rebranding", Client: "Imprenta Sol", Budget: decimal.NewFromInt(15000)})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Planning", p.Status)

	p, err = svc.SaveProject(ctx, p.ID, ProjectInput{Name: "Rebranding", Status: "Active"})
	require.NoError(t, err)
	assert.Equal(t, "Active", p.Status)

	projects, _, err := svc.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Active", projects[0].Status)

	require.NoError(t, svc.DeleteProject(ctx, p.ID))
	assert.ErrorIs(t, svc.DeleteProject(ctx, p.ID), shared.ErrNotFound)

	_, err = svc.SaveProject(ctx, "ghost", ProjectInput{Name: "x"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.SaveProject(ctx, "", ProjectInput{Name: "x", Status: "Someday"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	actions := make([]shared.AuditAction, 0)
	for _, l := range spy.Logs() {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []shared.AuditAction{shared.AuditCreate, shared.AuditUpdate, shared.AuditDelete}, actions)
}

func TestEventRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	start := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	e, err := svc.SaveEvent(ctx, "", EventInput{Title: "Entrega", Start: start})
	require.NoError(t, err)
	assert.True(t, e.End.Equal(start))

	_, err = svc.SaveEvent(ctx, "", EventInput{Title: "Entrega", Start: start, End: start.Add(-time.Hour)})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.SaveEvent(ctx, "", EventInput{Title: "Entrega"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	events, _, err := svc.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	require.NoError(t, svc.DeleteEvent(ctx, e.ID))
}

func TestCategories(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.SaveCategory(ctx, "", CategoryInput{Name: "Papelería", Color: "#ff8800"})
	require.NoError(t, err)
	_, err = svc.SaveCategory(ctx, "", CategoryInput{Name: "Tintas", Color: "orange"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	list, _, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
	require.NoError(t, svc.DeleteCategory(ctx, c.ID))
}

func TestSettingsDefaultsAndSave(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, SettingsID, st.ID)

	st.BusinessName = "Imprenta Sol"
	st.TaxRate = decimal.RequireFromString("0.16")
	_, err = svc.SaveSettings(ctx, st)
	require.NoError(t, err)

	st.BusinessName = "Imprenta Sol SA"
	_, err = svc.SaveSettings(ctx, st)
	require.NoError(t, err)

	got, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Imprenta Sol SA", got.BusinessName)
	assert.True(t, got.TaxRate.Equal(decimal.RequireFromString("0.16")))

	st.Currency = "PESOS"
	_, err = svc.SaveSettings(ctx, st)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUsersVerifyPIN(t *testing.T) {
	svc, h, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, UserInput{Name: "Ana", Role: RoleAdmin, PIN: "4321"})
	require.NoError(t, err)
	assert.NotContains(t, u.PINHash, "4321")

	actor, err := svc.VerifyPIN(ctx, u.ID, "4321")
	require.NoError(t, err)
	assert.Equal(t, shared.Actor{ID: u.ID, Name: "Ana", Role: "admin"}, actor)

	_, err = svc.VerifyPIN(ctx, u.ID, "0000")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.VerifyPIN(ctx, "ghost", "4321")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.CreateUser(ctx, UserInput{Name: "Luis", Role: RoleStaff, PIN: "12ab"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	var stored []User
	h.RemoteList(t, "users", &stored)
	require.Len(t, stored, 1)

	require.NoError(t, svc.DeleteUser(ctx, u.ID))
	users, _, err := svc.Users(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
