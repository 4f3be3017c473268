// Package catalog holds the small single-document collections edited through
// plain forms: projects, calendar, categories, settings and users.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// Service exposes catalog CRUD.
type Service struct {
	projects   *docsync.Collection[Project]
	events     *docsync.Collection[Event]
	categories *docsync.Collection[Category]
	settings   *docsync.Collection[Settings]
	users      *docsync.Collection[User]
	audit      shared.AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds Service.
func NewService(sync *docsync.Synchronizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		projects:   docsync.NewCollection[Project](sync, partition.MustKey(partition.Projects)),
		events:     docsync.NewCollection[Event](sync, partition.MustKey(partition.Calendar)),
		categories: docsync.NewCollection[Category](sync, partition.MustKey(partition.Categories)),
		settings:   docsync.NewCollection[Settings](sync, partition.MustKey(partition.Settings)),
		users:      docsync.NewCollection[User](sync, partition.MustKey(partition.Users)),
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================================================
// PROJECTS
// ============================================================================

// Projects lists projects.
func (s *Service) Projects(ctx context.Context) ([]Project, docsync.Source, error) {
	return s.projects.List(ctx)
}

// SaveProject creates a project when id is empty, otherwise replaces it.
func (s *Service) SaveProject(ctx context.Context, id string, in ProjectInput) (Project, error) {
	if err := shared.Validate(in); err != nil {
		return Project{}, err
	}
	p := Project{ID: id, Name: in.Name, ClientID: in.ClientID, Client: in.Client, Status: in.Status, Budget: in.Budget, DueDate: in.DueDate, Notes: in.Notes}
	if p.Status == "" {
		p.Status = "Planning"
	}
	return save(ctx, s, s.projects, "projects", p, func(v *Project, id string) { v.ID = id })
}

// DeleteProject removes a project.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return remove(ctx, s, s.projects, "projects", id)
}

// ============================================================================
// CALENDAR
// ============================================================================

// Events lists calendar entries.
func (s *Service) Events(ctx context.Context) ([]Event, docsync.Source, error) {
	return s.events.List(ctx)
}

// SaveEvent creates or replaces an event. The end may not precede the start.
func (s *Service) SaveEvent(ctx context.Context, id string, in EventInput) (Event, error) {
	if err := shared.Validate(in); err != nil {
		return Event{}, err
	}
	if in.Start.IsZero() {
		return Event{}, shared.NewValidationError("start", "required")
	}
	end := in.End
	if end.IsZero() {
		end = in.Start
	}
	if end.Before(in.Start) {
		return Event{}, shared.NewValidationError("end", "before start")
	}
	e := Event{ID: id, Title: in.Title, Start: in.Start, End: end, AllDay: in.AllDay, ClientID: in.ClientID, Notes: in.Notes}
	return save(ctx, s, s.events, "calendar", e, func(v *Event, id string) { v.ID = id })
}

// DeleteEvent removes an event.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return remove(ctx, s, s.events, "calendar", id)
}

// ============================================================================
// CATEGORIES
// ============================================================================

// Categories lists categories.
func (s *Service) Categories(ctx context.Context) ([]Category, docsync.Source, error) {
	return s.categories.List(ctx)
}

// SaveCategory creates or replaces a category.
func (s *Service) SaveCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	if err := shared.Validate(in); err != nil {
		return Category{}, err
	}
	c := Category{ID: id, Name: in.Name, Color: in.Color}
	return save(ctx, s, s.categories, "categories", c, func(v *Category, id string) { v.ID = id })
}

// DeleteCategory removes a category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return remove(ctx, s, s.categories, "categories", id)
}

// ============================================================================
// SETTINGS
// ============================================================================

// Settings returns the business settings, defaults when never saved.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	list, _, err := s.settings.List(ctx)
	if err != nil {
		return Settings{}, err
	}
	for _, st := range list {
		if st.ID == SettingsID {
			return st, nil
		}
	}
	return Settings{ID: SettingsID, Currency: "MXN"}, nil
}

// SaveSettings replaces the business settings.
func (s *Service) SaveSettings(ctx context.Context, in Settings) (Settings, error) {
	in.ID = SettingsID
	if err := shared.Validate(in); err != nil {
		return Settings{}, err
	}
	if _, err := s.settings.Upsert(ctx, in); err != nil {
		return Settings{}, err
	}
	s.record(ctx, shared.AuditUpdate, "settings", "Updated settings", SettingsID)
	return in, nil
}

// ============================================================================
// USERS
// ============================================================================

// Users lists users.
func (s *Service) Users(ctx context.Context) ([]User, docsync.Source, error) {
	return s.users.List(ctx)
}

// CreateUser stores a user with a bcrypt-hashed PIN.
func (s *Service) CreateUser(ctx context.Context, in UserInput) (User, error) {
	if err := shared.Validate(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash pin: %w", err)
	}
	u := User{ID: uuid.NewString(), Name: in.Name, Role: in.Role, PINHash: string(hash), Active: true, CreatedAt: s.now()}
	if _, err := s.users.Upsert(ctx, u); err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditCreate, "users", "Created user "+u.Name, u.ID)
	return u, nil
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return remove(ctx, s, s.users, "users", id)
}

// VerifyPIN checks pin against the stored hash and returns the actor it
// identifies.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) (shared.Actor, error) {
	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return shared.Actor{}, err
	}
	if !u.Active {
		return shared.Actor{}, fmt.Errorf("user %s inactive: %w", userID, shared.ErrForbidden)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PINHash), []byte(pin)); err != nil {
		return shared.Actor{}, fmt.Errorf("user %s: %w", userID, shared.ErrForbidden)
	}
	return shared.Actor{ID: u.ID, Name: u.Name, Role: string(u.Role)}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func save[T docsync.Record](ctx context.Context, s *Service, coll *docsync.Collection[T], module string, rec T, setID func(*T, string)) (T, error) {
	action := shared.AuditUpdate
	if rec.RecordID() == "" {
		setID(&rec, uuid.NewString())
		action = shared.AuditCreate
	}
	if action == shared.AuditUpdate {
		_, err := coll.Mutate(ctx, func(list []T) ([]T, error) {
			for i := range list {
				if list[i].RecordID() == rec.RecordID() {
					list[i] = rec
					return list, nil
				}
			}
			return nil, fmt.Errorf("%s %s: %w", module, rec.RecordID(), shared.ErrNotFound)
		})
		if err != nil {
			var zero T
			return zero, err
		}
	} else if _, err := coll.Upsert(ctx, rec); err != nil {
		var zero T
		return zero, err
	}
	s.record(ctx, action, module, fmt.Sprintf("Saved %s %s", module, rec.RecordID()), rec.RecordID())
	return rec, nil
}

func remove[T docsync.Record](ctx context.Context, s *Service, coll *docsync.Collection[T], module, id string) error {
	if _, err := coll.Remove(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.AuditDelete, module, fmt.Sprintf("Deleted %s %s", module, id), id)
	return nil
}

func (s *Service) record(ctx context.Context, action shared.AuditAction, module, desc, id string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Module: module, Description: desc, Meta: map[string]any{"id": id}})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("module", module), slog.Any("error", err))
	}
}
