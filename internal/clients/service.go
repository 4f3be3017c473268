package clients

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

const module = "clients"

// Service manages clients and their conversation logs.
type Service struct {
	sync    *docsync.Synchronizer
	clients *docsync.Collection[Client]
	audit   shared.AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service.
func NewService(sync *docsync.Synchronizer, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sync:    sync,
		clients: docsync.NewCollection[Client](sync, partition.MustKey(partition.Clients)),
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// List returns every client, from the cache when offline.
func (s *Service) List(ctx context.Context) ([]Client, docsync.Source, error) {
	return s.clients.List(ctx)
}

// Get returns one client.
func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	return s.clients.Find(ctx, id)
}

// Create stores a new client.
func (s *Service) Create(ctx context.Context, input Input) (Client, error) {
	if err := shared.Validate(input); err != nil {
		return Client{}, err
	}
	client := fromInput(uuid.NewString(), input)
	client.CreatedAt = s.now()
	if _, err := s.clients.Upsert(ctx, client); err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	s.record(ctx, shared.AuditCreate, "Created client "+client.Name, client.ID)
	return client, nil
}

// Update edits an existing client.
func (s *Service) Update(ctx context.Context, id string, input Input) (Client, error) {
	if err := shared.Validate(input); err != nil {
		return Client{}, err
	}
	var updated Client
	_, err := s.clients.Mutate(ctx, func(list []Client) ([]Client, error) {
		for i := range list {
			if list[i].ID != id {
				continue
			}
			next := fromInput(id, input)
			next.CreatedAt = list[i].CreatedAt
			list[i] = next
			updated = next
			return list, nil
		}
		return nil, fmt.Errorf("client %s: %w", id, shared.ErrNotFound)
	})
	if err != nil {
		return Client{}, err
	}
	s.record(ctx, shared.AuditUpdate, "Updated client "+updated.Name, id)
	return updated, nil
}

// Delete removes a client and resets its conversation log in one atomic
// commit. Clients still referenced by a quote or project cannot be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	chatKey, err := partition.Key(partition.Chat, partition.Context{ClientID: id})
	if err != nil {
		return &shared.ValidationError{Field: "id", Message: err.Error()}
	}
	clientsKey := partition.MustKey(partition.Clients)
	quotesKey := partition.MustKey(partition.Quotes)
	projectsKey := partition.MustKey(partition.Projects)

	tx, err := s.sync.Begin(ctx, "delete_client", clientsKey, quotesKey, projectsKey, chatKey)
	if err != nil {
		return err
	}
	list, err := docsync.ReadList[Client](tx, clientsKey)
	if err != nil {
		return err
	}
	var target Client
	next, ok := docsync.Remove(list, id)
	if !ok {
		return fmt.Errorf("client %s: %w", id, shared.ErrNotFound)
	}
	for _, c := range list {
		if c.ID == id {
			target = c
		}
	}

	for _, key := range []string{quotesKey, projectsKey} {
		refs, err := docsync.ReadList[reference](tx, key)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.points(target) {
				return shared.NewValidationError("id", "client %s is referenced by %s %s", target.Name, key, ref.ID)
			}
		}
		if err := tx.Pin(key); err != nil {
			return err
		}
	}

	if err := docsync.StageList(tx, clientsKey, next); err != nil {
		return err
	}
	if err := docsync.StageList(tx, chatKey, []Message{}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.record(ctx, shared.AuditDelete, "Deleted client "+target.Name, id)
	return nil
}

// History returns the conversation log of a client, oldest first.
func (s *Service) History(ctx context.Context, clientID string) ([]Message, docsync.Source, error) {
	chat, err := s.chat(clientID)
	if err != nil {
		return nil, docsync.SourceEmpty, err
	}
	return chat.List(ctx)
}

// AppendMessage adds a message to a client's conversation log.
func (s *Service) AppendMessage(ctx context.Context, clientID string, input MessageInput) (Message, error) {
	if err := shared.Validate(input); err != nil {
		return Message{}, err
	}
	chat, err := s.chat(clientID)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		ID:       uuid.NewString(),
		ClientID: clientID,
		Author:   shared.ActorFromContext(ctx).Label(),
		Text:     input.Text,
		SentAt:   s.now(),
	}
	if _, err := chat.Mutate(ctx, func(list []Message) ([]Message, error) {
		return append(list, msg), nil
	}); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *Service) chat(clientID string) (*docsync.Collection[Message], error) {
	key, err := partition.Key(partition.Chat, partition.Context{ClientID: clientID})
	if err != nil {
		return nil, &shared.ValidationError{Field: "client_id", Message: err.Error()}
	}
	return docsync.NewCollection[Message](s.sync, key), nil
}

func fromInput(id string, in Input) Client {
	return Client{
		ID:      id,
		Name:    in.Name,
		Company: in.Company,
		Email:   in.Email,
		Phone:   in.Phone,
		Address: in.Address,
		TaxID:   in.TaxID,
		Notes:   in.Notes,
	}
}

func (s *Service) record(ctx context.Context, action shared.AuditAction, desc, id string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{Action: action, Module: module, Description: desc, Meta: map[string]any{"client_id": id}})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("module", module), slog.Any("error", err))
	}
}
