package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cimillas/ultimate-parking/internal/clock"
	"github.com/cimillas/ultimate-parking/internal/domain"
	"github.com/cimillas/ultimate-parking/internal/metrics"
)

//go:generate mockgen -source=ticket_service.go -destination=mocks/mocks.go -package=mocks

// TicketRepository is the durable ticket store.
//
// GetTicket and GetActiveTicketByPlate return domain.ErrTicketNotFound when no
// row matches. CreateTicket returns domain.ErrDuplicateTicketID on an id
// collision. SettleTicket must only write when the row is still unsettled and
// returns the number of rows it changed.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket domain.Ticket) error
	GetTicket(ctx context.Context, id string) (domain.Ticket, error)
	GetActiveTicketByPlate(ctx context.Context, plate string) (domain.Ticket, error)
	SettleTicket(ctx context.Context, id string, exitAt time.Time, amount int64) (int64, error)
}

type TicketService struct {
	repo     TicketRepository
	clock    clock.Clock
	calendar clock.Calendar
	tariff   domain.Tariff
	ids      IDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

const maxIssueAttempts = 3

func NewTicketService(repo TicketRepository, clk clock.Clock, cal clock.Calendar, opts ...TicketServiceOption) *TicketService {
	svc := &TicketService{
		repo:     repo,
		clock:    clk,
		calendar: cal,
		tariff:   domain.DefaultTariff(),
		ids:      NewShortCodeGenerator(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type TicketServiceOption func(*TicketService)

// WithTariff overrides the default tariff.
func WithTariff(t domain.Tariff) TicketServiceOption {
	return func(s *TicketService) {
		s.tariff = t
	}
}

// WithIDGenerator overrides the short-code id generator.
func WithIDGenerator(g IDGenerator) TicketServiceOption {
	return func(s *TicketService) {
		if g != nil {
			s.ids = g
		}
	}
}

func WithTicketLogger(l *slog.Logger) TicketServiceOption {
	return func(s *TicketService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTicketMetrics(m *metrics.Metrics) TicketServiceOption {
	return func(s *TicketService) {
		s.metrics = m
	}
}

type IssueTicketInput struct {
	Plate   string
	Vehicle domain.Vehicle
}

// Issue stamps and stores a new open ticket. The entry instant is taken from
// the service clock, never from the caller.
func (s *TicketService) Issue(ctx context.Context, in IssueTicketInput) (domain.Ticket, error) {
	plate := domain.NormalizePlate(in.Plate)
	if plate == "" {
		return domain.Ticket{}, domain.ErrPlateRequired
	}

	// Stores keep microsecond precision; stamp what will be persisted.
	now := s.clock.Now().Truncate(time.Microsecond)
	ticket := domain.Ticket{
		Day:     s.calendar.Day(now),
		Plate:   plate,
		Vehicle: in.Vehicle.Normalize(),
		EntryAt: now,
	}

	var lastErr error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		id, err := s.ids.NewID()
		if err != nil {
			return domain.Ticket{}, fmt.Errorf("issue ticket: %w", err)
		}
		ticket.ID = id

		err = s.repo.CreateTicket(ctx, ticket)
		if err == nil {
			s.metrics.IncrementTicketsIssued()
			s.logger.InfoContext(ctx, "ticket issued", "ticket_id", ticket.ID, "plate", plate, "day", ticket.Day)
			return ticket, nil
		}
		if !errors.Is(err, domain.ErrDuplicateTicketID) {
			return domain.Ticket{}, err
		}
		s.logger.WarnContext(ctx, "ticket id collision, retrying", "ticket_id", id, "attempt", attempt)
		lastErr = err
	}
	return domain.Ticket{}, lastErr
}

// Quote is a read-only fare estimate for an open ticket.
type Quote struct {
	TicketID       string
	Plate          string
	EntryAt        time.Time
	QuotedAt       time.Time
	ElapsedMinutes int64
	Amount         int64
}

// Quote computes the live fare without touching the stored ticket.
func (s *TicketService) Quote(ctx context.Context, id string) (Quote, error) {
	ticket, err := s.lookup(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if ticket.Settled {
		return Quote{}, domain.ErrTicketAlreadySettled
	}

	now := s.now(ctx, ticket)
	return Quote{
		TicketID:       ticket.ID,
		Plate:          ticket.Plate,
		EntryAt:        ticket.EntryAt,
		QuotedAt:       now,
		ElapsedMinutes: domain.ElapsedMinutes(ticket.EntryAt, now),
		Amount:         s.tariff.Fare(ticket.EntryAt, now),
	}, nil
}

// Settle charges the ticket exactly once. A repeat or concurrent settle that
// loses the conditional write gets domain.ErrTicketAlreadySettled.
func (s *TicketService) Settle(ctx context.Context, id string) (domain.Ticket, error) {
	ticket, err := s.lookup(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	if ticket.Settled {
		s.metrics.IncrementSettleConflicts()
		return domain.Ticket{}, domain.ErrTicketAlreadySettled
	}

	now := s.now(ctx, ticket)
	amount := s.tariff.Fare(ticket.EntryAt, now)

	rows, err := s.repo.SettleTicket(ctx, ticket.ID, now, amount)
	if err != nil {
		return domain.Ticket{}, err
	}
	if rows == 0 {
		// The row was settled between our read and the guarded write.
		s.metrics.IncrementSettleConflicts()
		s.logger.WarnContext(ctx, "lost settlement race", "ticket_id", ticket.ID)
		return domain.Ticket{}, domain.ErrTicketAlreadySettled
	}

	ticket.Settle(now, amount)
	s.metrics.ObserveSettlement(amount)
	s.logger.InfoContext(ctx, "ticket settled", "ticket_id", ticket.ID, "amount", amount)
	return ticket, nil
}

// FindActiveByPlate returns the most recently issued open ticket for a plate.
func (s *TicketService) FindActiveByPlate(ctx context.Context, plate string) (domain.Ticket, error) {
	plate = domain.NormalizePlate(plate)
	if plate == "" {
		return domain.Ticket{}, domain.ErrPlateRequired
	}
	return s.repo.GetActiveTicketByPlate(ctx, plate)
}

func (s *TicketService) lookup(ctx context.Context, id string) (domain.Ticket, error) {
	id = s.ids.Normalize(id)
	if id == "" {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return s.repo.GetTicket(ctx, id)
}

func (s *TicketService) now(ctx context.Context, ticket domain.Ticket) time.Time {
	now := s.clock.Now().Truncate(time.Microsecond)
	if now.Before(ticket.EntryAt) {
		s.logger.WarnContext(ctx, "clock is behind ticket entry, charging base fee",
			"ticket_id", ticket.ID, "entry_at", ticket.EntryAt, "now", now)
	}
	return now
}
