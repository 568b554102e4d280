package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/ultimate-parking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, day::text, plate, brand, model, color, entry_at, exit_at, settled, amount`

func (r *TicketRepository) CreateTicket(ctx context.Context, ticket domain.Ticket) error {
	const stmt = `
INSERT INTO tickets (id, day, plate, brand, model, color, entry_at, settled)
VALUES ($1, $2::date, $3, $4, $5, $6, $7, FALSE)`

	_, err := r.pool.Exec(ctx, stmt,
		ticket.ID,
		ticket.Day,
		ticket.Plate,
		ticket.Vehicle.Brand,
		ticket.Vehicle.Model,
		ticket.Vehicle.Color,
		ticket.EntryAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTicketID
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	t, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) GetActiveTicketByPlate(ctx context.Context, plate string) (domain.Ticket, error) {
	const query = `
SELECT ` + ticketColumns + `
FROM tickets
WHERE plate = $1 AND NOT settled
ORDER BY entry_at DESC
LIMIT 1`

	t, err := scanTicket(r.pool.QueryRow(ctx, query, plate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("get active ticket by plate: %w", err)
	}
	return t, nil
}

// SettleTicket is a compare-and-set on the settled flag: it writes only while
// the row is still open and reports how many rows it changed.
func (r *TicketRepository) SettleTicket(ctx context.Context, id string, exitAt time.Time, amount int64) (int64, error) {
	const stmt = `
UPDATE tickets
SET settled = TRUE, exit_at = $2, amount = $3
WHERE id = $1 AND NOT settled`

	tag, err := r.pool.Exec(ctx, stmt, id, exitAt, amount)
	if err != nil {
		return 0, fmt.Errorf("settle ticket: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TicketRepository) SumSettledForDay(ctx context.Context, day string) (domain.DailyTotal, error) {
	const query = `
SELECT COALESCE(SUM(amount), 0), COUNT(*)
FROM tickets
WHERE day = $1::date AND settled`

	total := domain.DailyTotal{Day: day}
	if err := r.pool.QueryRow(ctx, query, day).Scan(&total.Total, &total.Count); err != nil {
		return domain.DailyTotal{}, fmt.Errorf("sum settled for day: %w", err)
	}
	return total, nil
}

// Ping reports whether the database is reachable.
func (r *TicketRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(
		&t.ID,
		&t.Day,
		&t.Plate,
		&t.Vehicle.Brand,
		&t.Vehicle.Model,
		&t.Vehicle.Color,
		&t.EntryAt,
		&t.ExitAt,
		&t.Settled,
		&t.Amount,
	)
	if err != nil {
		return domain.Ticket{}, err
	}
	t.EntryAt = t.EntryAt.UTC()
	if t.ExitAt != nil {
		exit := t.ExitAt.UTC()
		t.ExitAt = &exit
	}
	return t, nil
}
