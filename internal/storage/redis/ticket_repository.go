// Package redis stores tickets in Redis.
//
// Layout, under a configurable prefix:
//
//	<prefix>ticket:<id>          hash with the ticket fields
//	<prefix>plate:<plate>:open   sorted set of open ticket ids scored by entry time
//	<prefix>cashcut:<day>        hash with running total and count of settled tickets
//
// Inserts and settlements run as Lua scripts so each touches its keys atomically.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cimillas/ultimate-parking/internal/domain"
)

const DefaultKeyPrefix = "parking:"

var insertScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'day', ARGV[2], 'plate', ARGV[3],
	'brand', ARGV[4], 'model', ARGV[5], 'color', ARGV[6],
	'entry_at', ARGV[7], 'settled', '0')
redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
return 1
`)

var settleScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'settled') ~= '0' then
	return 0
end
redis.call('HSET', KEYS[1], 'settled', '1', 'exit_at', ARGV[2], 'amount', ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HINCRBY', KEYS[3], 'total', ARGV[3])
redis.call('HINCRBY', KEYS[3], 'count', 1)
return 1
`)

type TicketRepository struct {
	client goredis.UniversalClient
	prefix string
}

type Option func(*TicketRepository)

// WithKeyPrefix namespaces all keys, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(r *TicketRepository) {
		r.prefix = prefix
	}
}

func NewTicketRepository(client goredis.UniversalClient, opts ...Option) *TicketRepository {
	r := &TicketRepository{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TicketRepository) ticketKey(id string) string {
	return r.prefix + "ticket:" + id
}

func (r *TicketRepository) plateKey(plate string) string {
	return r.prefix + "plate:" + plate + ":open"
}

func (r *TicketRepository) cashCutKey(day string) string {
	return r.prefix + "cashcut:" + day
}

func (r *TicketRepository) CreateTicket(ctx context.Context, ticket domain.Ticket) error {
	created, err := insertScript.Run(ctx, r.client,
		[]string{r.ticketKey(ticket.ID), r.plateKey(ticket.Plate)},
		ticket.ID,
		ticket.Day,
		ticket.Plate,
		ticket.Vehicle.Brand,
		ticket.Vehicle.Model,
		ticket.Vehicle.Color,
		ticket.EntryAt.UnixMicro(),
	).Int64()
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	if created == 0 {
		return domain.ErrDuplicateTicketID
	}
	return nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	fields, err := r.client.HGetAll(ctx, r.ticketKey(id)).Result()
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	if len(fields) == 0 {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	t, err := decodeTicket(fields)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return t, nil
}

func (r *TicketRepository) GetActiveTicketByPlate(ctx context.Context, plate string) (domain.Ticket, error) {
	ids, err := r.client.ZRevRange(ctx, r.plateKey(plate), 0, 0).Result()
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("get active ticket by plate: %w", err)
	}
	if len(ids) == 0 {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return r.GetTicket(ctx, ids[0])
}

// SettleTicket flips the settled flag only while it is still "0", in the same
// script that updates the plate index and the day's running total.
func (r *TicketRepository) SettleTicket(ctx context.Context, id string, exitAt time.Time, amount int64) (int64, error) {
	// plate and day never change after insert, so reading them first is safe.
	vals, err := r.client.HMGet(ctx, r.ticketKey(id), "plate", "day").Result()
	if err != nil {
		return 0, fmt.Errorf("settle ticket: %w", err)
	}
	plate, _ := vals[0].(string)
	day, _ := vals[1].(string)
	if plate == "" || day == "" {
		return 0, nil
	}

	rows, err := settleScript.Run(ctx, r.client,
		[]string{r.ticketKey(id), r.plateKey(plate), r.cashCutKey(day)},
		id,
		exitAt.UnixMicro(),
		amount,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("settle ticket: %w", err)
	}
	return rows, nil
}

func (r *TicketRepository) SumSettledForDay(ctx context.Context, day string) (domain.DailyTotal, error) {
	vals, err := r.client.HMGet(ctx, r.cashCutKey(day), "total", "count").Result()
	if err != nil {
		return domain.DailyTotal{}, fmt.Errorf("sum settled for day: %w", err)
	}
	total := domain.DailyTotal{Day: day}
	if total.Total, err = parseOptionalInt(vals[0]); err != nil {
		return domain.DailyTotal{}, fmt.Errorf("parse total for %s: %w", day, err)
	}
	if total.Count, err = parseOptionalInt(vals[1]); err != nil {
		return domain.DailyTotal{}, fmt.Errorf("parse count for %s: %w", day, err)
	}
	return total, nil
}

// Ping reports whether Redis is reachable.
func (r *TicketRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeTicket(fields map[string]string) (domain.Ticket, error) {
	entry, err := strconv.ParseInt(fields["entry_at"], 10, 64)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("entry_at: %w", err)
	}
	t := domain.Ticket{
		ID:    fields["id"],
		Day:   fields["day"],
		Plate: fields["plate"],
		Vehicle: domain.Vehicle{
			Brand: fields["brand"],
			Model: fields["model"],
			Color: fields["color"],
		},
		EntryAt: time.UnixMicro(entry).UTC(),
	}
	if fields["settled"] != "1" {
		return t, nil
	}

	exit, err := strconv.ParseInt(fields["exit_at"], 10, 64)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("exit_at: %w", err)
	}
	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("amount: %w", err)
	}
	t.Settle(time.UnixMicro(exit).UTC(), amount)
	return t, nil
}

func parseOptionalInt(v any) (int64, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
