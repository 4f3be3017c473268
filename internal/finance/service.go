package finance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

const module = "finance"

// DefaultAdminRole may correct closed shifts.
const DefaultAdminRole = "admin"

// Service manages cash shifts.
type Service struct {
	shifts    *docsync.Collection[CashShift]
	audit     shared.AuditPort
	logger    *slog.Logger
	adminRole string
	now       func() time.Time
}

// NewService builds Service. An empty adminRole uses DefaultAdminRole.
func NewService(sync *docsync.Synchronizer, audit shared.AuditPort, logger *slog.Logger, adminRole string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}
	return &Service{
		shifts:    docsync.NewCollection[CashShift](sync, partition.MustKey(partition.FinanceShifts)),
		audit:     audit,
		logger:    logger,
		adminRole: adminRole,
		now:       time.Now,
	}
}

// List returns all shifts, newest first.
func (s *Service) List(ctx context.Context) ([]CashShift, docsync.Source, error) {
	return s.shifts.List(ctx)
}

// Current returns the open shift, if any.
func (s *Service) Current(ctx context.Context) (CashShift, bool, error) {
	list, _, err := s.shifts.List(ctx)
	if err != nil {
		return CashShift{}, false, err
	}
	for _, shift := range list {
		if shift.Status == ShiftOpen {
			return shift, true, nil
		}
	}
	return CashShift{}, false, nil
}

// OpenShift starts a shift. Only one shift may be open at a time.
func (s *Service) OpenShift(ctx context.Context, input OpenInput) (CashShift, error) {
	if input.InitialAmount.IsNegative() {
		return CashShift{}, shared.NewValidationError("initialAmount", "must not be negative")
	}
	shift := CashShift{
		ID:            uuid.NewString(),
		Status:        ShiftOpen,
		OpenedBy:      shared.ActorFromContext(ctx).Label(),
		OpenedAt:      s.now(),
		InitialAmount: input.InitialAmount,
		Transactions:  []Transaction{},
	}
	_, err := s.shifts.Mutate(ctx, func(list []CashShift) ([]CashShift, error) {
		for _, existing := range list {
			if existing.Status == ShiftOpen {
				return nil, shared.NewValidationError("status", "shift %s is still open", existing.ID)
			}
		}
		return docsync.Prepend(list, shift), nil
	})
	if err != nil {
		return CashShift{}, err
	}
	s.record(ctx, shared.AuditCreate, "Opened cash shift", shift.ID)
	return shift, nil
}

// AddTransaction appends a movement to an open shift.
func (s *Service) AddTransaction(ctx context.Context, shiftID string, input TransactionInput) (CashShift, error) {
	if err := shared.Validate(input); err != nil {
		return CashShift{}, err
	}
	if !input.Amount.IsPositive() {
		return CashShift{}, shared.NewValidationError("amount", "must be positive")
	}
	tr := Transaction{
		ID:          uuid.NewString(),
		Kind:        input.Kind,
		Amount:      input.Amount,
		Method:      input.Method,
		Description: input.Description,
		Reference:   input.Reference,
		At:          s.now(),
	}
	shift, err := s.update(ctx, shiftID, func(shift *CashShift) error {
		if shift.Status != ShiftOpen {
			return shared.NewValidationError("status", "shift %s is closed", shift.ID)
		}
		shift.Transactions = append(shift.Transactions, tr)
		return nil
	})
	if err != nil {
		return CashShift{}, err
	}
	s.record(ctx, shared.AuditUpdate, fmt.Sprintf("Registered %s of %s", tr.Kind, tr.Amount.StringFixed(2)), shiftID)
	return shift, nil
}

// CloseShift fixes the counted cash, the expected cash and their difference.
func (s *Service) CloseShift(ctx context.Context, shiftID string, input CloseInput) (CashShift, error) {
	if err := shared.Validate(input); err != nil {
		return CashShift{}, err
	}
	if input.FinalAmount.IsNegative() {
		return CashShift{}, shared.NewValidationError("finalAmount", "must not be negative")
	}
	actor := shared.ActorFromContext(ctx).Label()
	shift, err := s.update(ctx, shiftID, func(shift *CashShift) error {
		if shift.Status != ShiftOpen {
			return shared.NewValidationError("status", "shift %s is already closed", shift.ID)
		}
		closedAt := s.now()
		final := input.FinalAmount
		system := shift.Expected()
		diff := final.Sub(system)
		shift.Status = ShiftClosed
		shift.ClosedBy = actor
		shift.ClosedAt = &closedAt
		shift.FinalAmount = &final
		shift.SystemAmount = &system
		shift.Difference = &diff
		shift.Notes = input.Notes
		return nil
	})
	if err != nil {
		return CashShift{}, err
	}
	s.record(ctx, shared.AuditUpdate, "Closed cash shift with difference "+shift.Difference.StringFixed(2), shiftID)
	return shift, nil
}

// CorrectShift amends the counted cash of a closed shift. Only actors with
// the admin role may do so.
func (s *Service) CorrectShift(ctx context.Context, shiftID string, input CorrectionInput) (CashShift, error) {
	actor := shared.ActorFromContext(ctx)
	if actor.Role != s.adminRole {
		return CashShift{}, fmt.Errorf("correct shift: %w", shared.ErrForbidden)
	}
	if err := shared.Validate(input); err != nil {
		return CashShift{}, err
	}
	if input.FinalAmount.IsNegative() {
		return CashShift{}, shared.NewValidationError("finalAmount", "must not be negative")
	}
	shift, err := s.update(ctx, shiftID, func(shift *CashShift) error {
		if shift.Status != ShiftClosed {
			return shared.NewValidationError("status", "shift %s is not closed", shift.ID)
		}
		previous := decimalOrZero(shift.FinalAmount)
		final := input.FinalAmount
		system := shift.Expected()
		diff := final.Sub(system)
		shift.FinalAmount = &final
		shift.SystemAmount = &system
		shift.Difference = &diff
		shift.Corrections = append(shift.Corrections, Correction{
			By:                  actor.Label(),
			At:                  s.now(),
			Reason:              input.Reason,
			PreviousFinalAmount: previous,
		})
		return nil
	})
	if err != nil {
		return CashShift{}, err
	}
	s.record(ctx, shared.AuditUpdate, "Corrected cash shift: "+input.Reason, shiftID)
	return shift, nil
}

func (s *Service) update(ctx context.Context, id string, fn func(*CashShift) error) (CashShift, error) {
	var updated CashShift
	_, err := s.shifts.Mutate(ctx, func(list []CashShift) ([]CashShift, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if err := fn(&list[i]); err != nil {
				return nil, err
			}
			updated = list[i]
			return list, nil
		}
		return nil, fmt.Errorf("shift %s: %w", id, shared.ErrNotFound)
	})
	return updated, err
}

func (s *Service) record(ctx context.Context, action shared.AuditAction, desc, id string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Module: module, Description: desc, Meta: map[string]any{"shift_id": id}})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("module", module), slog.Any("error", err))
	}
}
