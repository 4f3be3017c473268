package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/bizstore/internal/docsync"
	"github.com/odyssey-erp/bizstore/internal/inventory"
	"github.com/odyssey-erp/bizstore/internal/partition"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

const module = "sales"

// Service provides business logic for quotes and sales.
type Service struct {
	sync   *docsync.Synchronizer
	quotes *docsync.Collection[Quote]
	audit  shared.AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a sales service.
func NewService(sync *docsync.Synchronizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sync:   sync,
		quotes: docsync.NewCollection[Quote](sync, partition.MustKey(partition.Quotes)),
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// ============================================================================
// QUOTE OPERATIONS
// ============================================================================

// ListQuotes returns every quote, from the cache when offline.
func (s *Service) ListQuotes(ctx context.Context) ([]Quote, docsync.Source, error) {
	return s.quotes.List(ctx)
}

// GetQuote returns one quote.
func (s *Service) GetQuote(ctx context.Context, id string) (Quote, error) {
	return s.quotes.Find(ctx, id)
}

// CreateQuote stores a new draft with the next COT-<year>-<seq> id.
func (s *Service) CreateQuote(ctx context.Context, input QuoteInput) (Quote, error) {
	if err := shared.Validate(input); err != nil {
		return Quote{}, err
	}
	now := s.now()
	lines := input.lines()
	quote := Quote{
		ClientID:   input.ClientID,
		ClientName: input.ClientName,
		Items:      lines,
		Amounts:    ComputeAmounts(lines, input.DiscountPercent, input.Tax),
		Status:     QuoteDraft,
		Notes:      input.Notes,
		CreatedAt:  now,
	}
	_, err := s.quotes.Mutate(ctx, func(list []Quote) ([]Quote, error) {
		quote.ID = QuoteID(now.Year(), nextQuoteSeq(list, now.Year()))
		return docsync.Prepend(list, quote), nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("create quote: %w", err)
	}
	s.record(ctx, shared.AuditCreate, "Created quote "+quote.ID, map[string]any{"quote_id": quote.ID})
	return quote, nil
}

// UpdateQuote replaces the lines and amounts of a draft quote.
func (s *Service) UpdateQuote(ctx context.Context, id string, input QuoteInput) (Quote, error) {
	if err := shared.Validate(input); err != nil {
		return Quote{}, err
	}
	var updated Quote
	_, err := s.quotes.Mutate(ctx, func(list []Quote) ([]Quote, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if list[i].Status == QuoteApproved {
				return nil, shared.NewValidationError("status", "quote %s is already approved", id)
			}
			lines := input.lines()
			list[i].ClientID = input.ClientID
			list[i].ClientName = input.ClientName
			list[i].Items = lines
			list[i].Amounts = ComputeAmounts(lines, input.DiscountPercent, input.Tax)
			list[i].Notes = input.Notes
			list[i].UpdatedAt = s.now()
			updated = list[i]
			return list, nil
		}
		return nil, fmt.Errorf("quote %s: %w", id, shared.ErrNotFound)
	})
	if err != nil {
		return Quote{}, err
	}
	s.record(ctx, shared.AuditUpdate, "Updated quote "+id, map[string]any{"quote_id": id})
	return updated, nil
}

// DeleteQuote removes a draft quote.
func (s *Service) DeleteQuote(ctx context.Context, id string) error {
	_, err := s.quotes.Mutate(ctx, func(list []Quote) ([]Quote, error) {
		for _, q := range list {
			if q.ID == id && q.Status == QuoteApproved {
				return nil, shared.NewValidationError("status", "quote %s is already approved", id)
			}
		}
		next, ok := docsync.Remove(list, id)
		if !ok {
			return nil, fmt.Errorf("quote %s: %w", id, shared.ErrNotFound)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, shared.AuditDelete, "Deleted quote "+id, map[string]any{"quote_id": id})
	return nil
}

// ============================================================================
// CONVERSION
// ============================================================================

func validateConvertible(q Quote) error {
	if len(q.Items) == 0 {
		return shared.NewValidationError("items", "quote %s has no items", q.ID)
	}
	if q.Status == QuoteApproved {
		return shared.NewValidationError("status", "quote %s is already approved", q.ID)
	}
	return nil
}

// ConvertQuoteToSale turns a draft quote into a sale. Inventory depletion,
// the quote approval and the sale in both the year shard and the legacy
// history are committed in one atomic write; on failure none of them change.
func (s *Service) ConvertQuoteToSale(ctx context.Context, quote Quote) (Sale, error) {
	if err := validateConvertible(quote); err != nil {
		return Sale{}, err
	}

	now := s.now()
	inventoryKey := partition.MustKey(partition.Inventory)
	quotesKey := partition.MustKey(partition.Quotes)
	shardKey := partition.SalesForDate(now)

	tx, err := s.sync.Begin(ctx, "convert_quote", inventoryKey, quotesKey, shardKey, partition.LegacySalesKey)
	if err != nil {
		return Sale{}, err
	}
	items, err := docsync.ReadList[inventory.Item](tx, inventoryKey)
	if err != nil {
		return Sale{}, err
	}
	quotes, err := docsync.ReadList[Quote](tx, quotesKey)
	if err != nil {
		return Sale{}, err
	}
	shardSales, err := docsync.ReadList[Sale](tx, shardKey)
	if err != nil {
		return Sale{}, err
	}
	legacySales, err := docsync.ReadList[Sale](tx, partition.LegacySalesKey)
	if err != nil {
		return Sale{}, err
	}

	idx := -1
	for i := range quotes {
		if quotes[i].ID == quote.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Sale{}, fmt.Errorf("quote %s: %w", quote.ID, shared.ErrNotFound)
	}
	current := quotes[idx]
	if err := validateConvertible(current); err != nil {
		return Sale{}, err
	}

	items = inventory.ApplySale(items, inventoryLines(current.Items))
	sale := saleFromQuote(current, now)
	quotes[idx].Status = QuoteApproved
	quotes[idx].UpdatedAt = now
	shardSales = docsync.Prepend(shardSales, sale)
	legacySales = docsync.Prepend(legacySales, sale)

	if err := docsync.StageList(tx, inventoryKey, items); err != nil {
		return Sale{}, err
	}
	if err := docsync.StageList(tx, quotesKey, quotes); err != nil {
		return Sale{}, err
	}
	if err := docsync.StageList(tx, shardKey, shardSales); err != nil {
		return Sale{}, err
	}
	if err := docsync.StageList(tx, partition.LegacySalesKey, legacySales); err != nil {
		return Sale{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Sale{}, err
	}

	s.logger.Info("quote converted", slog.String("quote_id", current.ID), slog.String("sale_id", sale.ID))
	s.record(ctx, shared.AuditCreate, fmt.Sprintf("Converted quote %s into sale %s", current.ID, sale.ID),
		map[string]any{"quote_id": current.ID, "sale_id": sale.ID, "total": sale.Total.String()})
	return sale, nil
}

// ============================================================================
// SALE OPERATIONS
// ============================================================================

// ListSales returns the sales of year.
func (s *Service) ListSales(ctx context.Context, year int) ([]Sale, docsync.Source, error) {
	key, err := partition.Key(partition.Sales, partition.Context{Year: year})
	if err != nil {
		return nil, docsync.SourceEmpty, &shared.ValidationError{Field: "year", Message: err.Error()}
	}
	return docsync.NewCollection[Sale](s.sync, key).List(ctx)
}

// RegisterPayment adds an installment to a sale in its year shard and in the
// legacy history.
func (s *Service) RegisterPayment(ctx context.Context, saleID string, input PaymentInput) (Sale, error) {
	if err := shared.Validate(input); err != nil {
		return Sale{}, err
	}
	if !input.Amount.IsPositive() {
		return Sale{}, shared.NewValidationError("amount", "must be positive")
	}
	var updated Sale
	err := s.updateSale(ctx, "register_payment", saleID, func(sale *Sale) error {
		if input.Amount.GreaterThan(sale.Balance) {
			return shared.NewValidationError("amount", "exceeds balance %s", sale.Balance.StringFixed(2))
		}
		sale.Payments = append(sale.Payments, Payment{
			ID:     uuid.NewString(),
			Amount: input.Amount,
			Method: input.Method,
			Date:   s.now(),
		})
		sale.AmountPaid = sale.AmountPaid.Add(input.Amount)
		sale.Normalize()
		updated = *sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.record(ctx, shared.AuditUpdate, fmt.Sprintf("Registered payment of %s on %s", input.Amount.StringFixed(2), saleID),
		map[string]any{"sale_id": saleID, "status": string(updated.PaymentStatus)})
	return updated, nil
}

// DeleteSale removes a sale from its year shard and the legacy history.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	if err := s.updateSale(ctx, "delete_sale", saleID, nil); err != nil {
		return err
	}
	s.record(ctx, shared.AuditDelete, "Deleted sale "+saleID, map[string]any{"sale_id": saleID})
	return nil
}

// updateSale applies fn to the sale in both documents, or removes it when
// fn is nil, as one atomic commit.
func (s *Service) updateSale(ctx context.Context, name, saleID string, fn func(*Sale) error) error {
	year, err := YearFromSaleID(saleID)
	if err != nil {
		return &shared.ValidationError{Field: "id", Message: err.Error()}
	}
	shardKey := partition.SalesShard(year)

	tx, err := s.sync.Begin(ctx, name, shardKey, partition.LegacySalesKey)
	if err != nil {
		return err
	}
	found := false
	for _, key := range []string{shardKey, partition.LegacySalesKey} {
		list, err := docsync.ReadList[Sale](tx, key)
		if err != nil {
			return err
		}
		i := -1
		for j := range list {
			if list[j].ID == saleID {
				i = j
				break
			}
		}
		if i < 0 {
			continue
		}
		found = true
		if fn == nil {
			list, _ = docsync.Remove(list, saleID)
		} else if err := fn(&list[i]); err != nil {
			return err
		}
		if err := docsync.StageList(tx, key, list); err != nil {
			return err
		}
		if fn != nil {
			// the shard copy is authoritative; mirror it verbatim
			fn = mirror(list[i])
		}
	}
	if !found {
		return fmt.Errorf("sale %s: %w", saleID, shared.ErrNotFound)
	}
	return tx.Commit(ctx)
}

func mirror(src Sale) func(*Sale) error {
	return func(dst *Sale) error {
		*dst = src
		return nil
	}
}

func (s *Service) record(ctx context.Context, action shared.AuditAction, desc string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Module: module, Description: desc, Meta: meta})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("module", module), slog.Any("error", err))
	}
}
