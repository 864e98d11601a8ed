package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/codec"
	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/pkg/util/errorutil"
)

// Backend keys owned by the ticket store.
const (
	TicketsKey  = "tickets"
	SequenceKey = "tickets:seq"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Get(ctx context.Context) ([]domain.Ticket, error)
	Find(ctx context.Context, id int64) (domain.Ticket, error)
	Append(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error)
	Update(ctx context.Context, id int64, patch domain.TicketPatch) (domain.Ticket, error)
	UpdateFunc(ctx context.Context, id int64, fn PatchFunc) (domain.Ticket, error)
	Remove(ctx context.Context, id int64) (bool, error)
	Save(ctx context.Context, tickets []domain.Ticket) error
}

// PatchFunc derives a patch from the ticket as currently stored. Returning an
// error aborts the update and leaves the store untouched.
type PatchFunc func(current domain.Ticket) (domain.TicketPatch, error)

// StoreOptions tunes a TicketStore. Zero values are usable.
type StoreOptions struct {
	Clock   func() time.Time
	Metrics *observability.Metrics
}

// TicketStore owns the canonical ticket list. The whole list is encoded as
// one value and rewritten on every mutation.
type TicketStore struct {
	mu      sync.Mutex
	backend persistence.Backend
	codec   codec.Codec
	logger  *zap.Logger
	now     func() time.Time
	metrics *observability.Metrics
}

// NewTicketStore wires a store to a backend and codec.
func NewTicketStore(backend persistence.Backend, c codec.Codec, logger *zap.Logger, opts StoreOptions) *TicketStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &TicketStore{
		backend: backend,
		codec:   c,
		logger:  logger,
		now:     now,
		metrics: opts.Metrics,
	}
}

// Get returns a copy of the stored tickets. A payload that cannot be decoded
// is discarded and reported as an empty list.
func (s *TicketStore) Get(ctx context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return domain.CloneTickets(tickets), nil
}

// Find returns one ticket or a not found error.
func (s *TicketStore) Find(ctx context.Context, id int64) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	idx := indexOf(tickets, id)
	if idx < 0 {
		return domain.Ticket{}, notFound(id)
	}
	return tickets[idx].Clone(), nil
}

// Append assigns the next id and persists the ticket. SubmittedAt is set from
// the store clock when the caller left it zero.
func (s *TicketStore) Append(ctx context.Context, ticket domain.Ticket) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	seq, err := s.loadSequence(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}

	ticket = ticket.Clone()
	ticket.ID = max(maxID(tickets), seq) + 1
	if ticket.SubmittedAt.IsZero() {
		ticket.SubmittedAt = s.now().UTC()
	}
	next := append(tickets, ticket)

	// Encode before touching the backend so a codec failure writes nothing.
	encoded, err := s.codec.Encode(next)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("encode tickets: %w", err)
	}
	if err := s.backend.Set(ctx, SequenceKey, strconv.FormatInt(ticket.ID, 10)); err != nil {
		return domain.Ticket{}, fmt.Errorf("store sequence: %w", err)
	}
	if err := s.backend.Set(ctx, TicketsKey, encoded); err != nil {
		return domain.Ticket{}, fmt.Errorf("store tickets: %w", err)
	}
	return ticket.Clone(), nil
}

// Update replaces the patched fields of one ticket.
func (s *TicketStore) Update(ctx context.Context, id int64, patch domain.TicketPatch) (domain.Ticket, error) {
	return s.UpdateFunc(ctx, id, func(domain.Ticket) (domain.TicketPatch, error) {
		return patch, nil
	})
}

// UpdateFunc reads, patches and writes one ticket under the store lock, so fn
// always sees the value its patch is applied to.
func (s *TicketStore) UpdateFunc(ctx context.Context, id int64, fn PatchFunc) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load(ctx)
	if err != nil {
		return domain.Ticket{}, err
	}
	idx := indexOf(tickets, id)
	if idx < 0 {
		return domain.Ticket{}, notFound(id)
	}
	patch, err := fn(tickets[idx].Clone())
	if err != nil {
		return domain.Ticket{}, err
	}
	tickets[idx] = patch.Apply(tickets[idx])
	if err := s.persist(ctx, tickets); err != nil {
		return domain.Ticket{}, err
	}
	return tickets[idx].Clone(), nil
}

// Remove deletes a ticket. Removing an unknown id is a no-op that reports
// false.
func (s *TicketStore) Remove(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	idx := indexOf(tickets, id)
	if idx < 0 {
		return false, nil
	}
	next := append(tickets[:idx:idx], tickets[idx+1:]...)
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Save replaces the whole list. The sequence is raised to cover the highest
// saved id so later appends never collide.
func (s *TicketStore) Save(ctx context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, err := s.loadSequence(ctx)
	if err != nil {
		return err
	}
	encoded, err := s.codec.Encode(tickets)
	if err != nil {
		return fmt.Errorf("encode tickets: %w", err)
	}
	if top := maxID(tickets); top > seq {
		if err := s.backend.Set(ctx, SequenceKey, strconv.FormatInt(top, 10)); err != nil {
			return fmt.Errorf("store sequence: %w", err)
		}
	}
	if err := s.backend.Set(ctx, TicketsKey, encoded); err != nil {
		return fmt.Errorf("store tickets: %w", err)
	}
	return nil
}

func (s *TicketStore) persist(ctx context.Context, tickets []domain.Ticket) error {
	encoded, err := s.codec.Encode(tickets)
	if err != nil {
		return fmt.Errorf("encode tickets: %w", err)
	}
	if err := s.backend.Set(ctx, TicketsKey, encoded); err != nil {
		return fmt.Errorf("store tickets: %w", err)
	}
	return nil
}

func (s *TicketStore) load(ctx context.Context) ([]domain.Ticket, error) {
	raw, ok, err := s.backend.Get(ctx, TicketsKey)
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}
	if !ok || raw == "" {
		return []domain.Ticket{}, nil
	}
	tickets, err := s.codec.Decode(raw)
	if err == nil {
		return tickets, nil
	}
	if !errors.Is(err, codec.ErrDecode) {
		return nil, err
	}

	s.logger.Warn("discarding undecodable ticket payload",
		zap.String("backend", s.backend.Name()),
		zap.String("codec", s.codec.Name()),
		zap.Bool("crypto", errors.Is(err, codec.ErrCrypto)),
		zap.Error(err),
	)
	s.metrics.RecordDecodeRecovery(s.backend.Name(), s.codec.Name())
	if err := s.backend.Delete(ctx, TicketsKey); err != nil {
		return nil, fmt.Errorf("clear corrupted tickets: %w", err)
	}
	return []domain.Ticket{}, nil
}

// loadSequence reads the id high-water mark. An unreadable value counts as
// zero; the max existing id still guards against collisions.
func (s *TicketStore) loadSequence(ctx context.Context) (int64, error) {
	raw, ok, err := s.backend.Get(ctx, SequenceKey)
	if err != nil {
		return 0, fmt.Errorf("load sequence: %w", err)
	}
	if !ok {
		return 0, nil
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("ignoring malformed ticket sequence", zap.String("value", raw))
		return 0, nil
	}
	return seq, nil
}

func indexOf(tickets []domain.Ticket, id int64) int {
	for i := range tickets {
		if tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func maxID(tickets []domain.Ticket) int64 {
	var top int64
	for _, t := range tickets {
		top = max(top, t.ID)
	}
	return top
}

func notFound(id int64) error {
	return errorutil.NewNotFound("ticket", map[string]any{"id": id})
}
