package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

// UpsertInput creates or edits an item.
type UpsertInput struct {
	ID        string          `json:"id"`
	Name      string          `json:"name" validate:"required,max=200"`
	Kind      Kind            `json:"type" validate:"omitempty,oneof=product service"`
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	MinStock  int             `json:"minStock" validate:"gte=0"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Service coordinates inventory operations.
type Service struct {
	items  *docsync.Collection[Item]
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(sync *docsync.Synchronizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		items:  docsync.NewCollection[Item](sync, partition.MustKey(partition.Inventory)),
		audit:  audit,
		logger: logger,
	}
}

// List returns every item, from the cache when offline.
func (s *Service) List(ctx context.Context) ([]Item, docsync.Source, error) {
	return s.items.List(ctx)
}

// Upsert creates or replaces an item. The status tier is always recomputed.
func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Item, error) {
	if err := shared.Validate(input); err != nil {
		return Item{}, err
	}
	item := Item{
		ID:        input.ID,
		Name:      input.Name,
		Kind:      input.Kind,
		Category:  input.Category,
		Unit:      input.Unit,
		Quantity:  input.Quantity,
		MinStock:  input.MinStock,
		UnitPrice: input.UnitPrice,
	}
	action := shared.AuditUpdate
	if item.ID == "" {
		item.ID = uuid.NewString()
		action = shared.AuditCreate
	}
	item.Normalize()

	if _, err := s.items.Upsert(ctx, item); err != nil {
		return Item{}, err
	}
	s.record(ctx, action, fmt.Sprintf("Saved item %s", item.Name), item.ID)
	return item, nil
}

// Adjust moves the quantity of id by delta, clamped at zero.
func (s *Service) Adjust(ctx context.Context, id string, delta int, reason string) (Item, error) {
	if delta == 0 {
		return Item{}, &shared.ValidationError{Field: "delta", Message: ErrInvalidQuantity.Error()}
	}
	var adjusted Item
	_, err := s.items.Mutate(ctx, func(list []Item) ([]Item, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			list[i].Quantity = max(0, list[i].Quantity+delta)
			list[i].Status = StatusFor(list[i].Quantity, list[i].MinStock)
			adjusted = list[i]
			return list, nil
		}
		return nil, fmt.Errorf("inventory item %s: %w", id, shared.ErrNotFound)
	})
	if err != nil {
		return Item{}, err
	}
	desc := fmt.Sprintf("Adjusted %s by %+d", adjusted.Name, delta)
	if reason != "" {
		desc += " (" + reason + ")"
	}
	s.record(ctx, shared.AuditUpdate, desc, id)
	return adjusted, nil
}

// Delete removes the item with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.items.Remove(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.AuditDelete, "Deleted item "+id, id)
	return nil
}

func (s *Service) record(ctx context.Context, action shared.AuditAction, desc, id string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Action:      action,
		Module:      "inventory",
		Description: desc,
		Meta:        map[string]any{"item_id": id},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("module", "inventory"), slog.Any("error", err))
	}
}
