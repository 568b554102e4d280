package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/cimillas/ultimate-parking/internal/app/mocks"
	"github.com/cimillas/ultimate-parking/internal/clock"
	"github.com/cimillas/ultimate-parking/internal/domain"
)

func TestTicketService_Issue(t *testing.T) {
	t.Parallel()

	// 04:00 UTC is 22:00 the previous day in Mexico City.
	now := time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC)
	cal, err := clock.LoadCalendar("America/Mexico_City")
	require.NoError(t, err)

	t.Run("stores normalized open ticket", func(t *testing.T) {
		repo := newFakeTicketRepo()
		svc := NewTicketService(repo, clock.NewFixed(now), cal)

		ticket, err := svc.Issue(context.Background(), IssueTicketInput{
			Plate:   "  abc-123 ",
			Vehicle: domain.Vehicle{Brand: " Nissan ", Color: "red"},
		})
		require.NoError(t, err)

		assert.Len(t, ticket.ID, 6)
		assert.Equal(t, "ABC-123", ticket.Plate)
		assert.Equal(t, "2025-01-01", ticket.Day)
		assert.Equal(t, now, ticket.EntryAt)
		assert.False(t, ticket.Settled)
		assert.Nil(t, ticket.ExitAt)
		assert.Nil(t, ticket.Amount)
		assert.Equal(t, domain.Vehicle{Brand: "Nissan", Model: "", Color: "red"}, ticket.Vehicle)

		stored, ok := repo.get(ticket.ID)
		require.True(t, ok)
		assert.Equal(t, ticket, stored)
	})

	t.Run("blank plate is rejected without a write", func(t *testing.T) {
		repo := newFakeTicketRepo()
		svc := NewTicketService(repo, clock.NewFixed(now), cal)

		for _, plate := range []string{"", "   ", "\t\n"} {
			_, err := svc.Issue(context.Background(), IssueTicketInput{Plate: plate})
			require.ErrorIs(t, err, domain.ErrPlateRequired)
		}
		assert.Equal(t, 0, repo.len())
	})

	t.Run("retries with a fresh id on collision", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "AAAAAA", Plate: "OLD", EntryAt: now})
		ids := &sequenceIDs{ids: []string{"AAAAAA", "BBBBBB"}}
		svc := NewTicketService(repo, clock.NewFixed(now), cal, WithIDGenerator(ids))

		ticket, err := svc.Issue(context.Background(), IssueTicketInput{Plate: "NEW"})
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", ticket.ID)
		assert.Equal(t, 2, repo.len())
	})

	t.Run("gives up after repeated collisions", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "AAAAAA", Plate: "OLD", EntryAt: now})
		ids := &sequenceIDs{ids: []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}}
		svc := NewTicketService(repo, clock.NewFixed(now), cal, WithIDGenerator(ids))

		_, err := svc.Issue(context.Background(), IssueTicketInput{Plate: "NEW"})
		require.ErrorIs(t, err, domain.ErrDuplicateTicketID)
		assert.Equal(t, 1, repo.len())
	})
}

func TestTicketService_Quote(t *testing.T) {
	t.Parallel()

	entry := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("returns live fare", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry, Day: "2025-01-02"})
		svc := NewTicketService(repo, clock.NewFixed(entry.Add(95*time.Minute)), clock.NewCalendar(time.UTC))

		quote, err := svc.Quote(context.Background(), "k7px2m")
		require.NoError(t, err)
		assert.Equal(t, "K7PX2M", quote.TicketID)
		assert.Equal(t, "ABC123", quote.Plate)
		assert.Equal(t, int64(95), quote.ElapsedMinutes)
		assert.Equal(t, int64(25), quote.Amount)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := NewTicketService(newFakeTicketRepo(), clock.NewFixed(entry), clock.NewCalendar(time.UTC))

		_, err := svc.Quote(context.Background(), "NOPE22")
		require.ErrorIs(t, err, domain.ErrTicketNotFound)

		_, err = svc.Quote(context.Background(), "  ")
		require.ErrorIs(t, err, domain.ErrTicketNotFound)
	})

	t.Run("settled ticket cannot be quoted", func(t *testing.T) {
		repo := newFakeTicketRepo()
		settled := domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry}
		settled.Settle(entry.Add(time.Hour), 15)
		repo.put(settled)
		svc := NewTicketService(repo, clock.NewFixed(entry.Add(2*time.Hour)), clock.NewCalendar(time.UTC))

		_, err := svc.Quote(context.Background(), "K7PX2M")
		require.ErrorIs(t, err, domain.ErrTicketAlreadySettled)
	})

	t.Run("quotes do not change what settle charges", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry})
		clk := newManualClock(entry.Add(10 * time.Minute))
		svc := NewTicketService(repo, clk, clock.NewCalendar(time.UTC))

		var last int64
		for i := 0; i < 5; i++ {
			quote, err := svc.Quote(context.Background(), "K7PX2M")
			require.NoError(t, err)
			require.GreaterOrEqual(t, quote.Amount, last)
			last = quote.Amount
			clk.Advance(20 * time.Minute)
		}
		stored, _ := repo.get("K7PX2M")
		require.False(t, stored.Settled)
		require.Nil(t, stored.Amount)

		// Clock is now at entry+110m.
		ticket, err := svc.Settle(context.Background(), "K7PX2M")
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultTariff().Fare(entry, clk.Now()), *ticket.Amount)
		assert.Equal(t, int64(30), *ticket.Amount)
	})
}

func TestTicketService_Settle(t *testing.T) {
	t.Parallel()

	entry := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("settles once and rejects the second attempt", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry})
		clk := newManualClock(entry.Add(95 * time.Minute))
		svc := NewTicketService(repo, clk, clock.NewCalendar(time.UTC))

		ticket, err := svc.Settle(context.Background(), "K7PX2M")
		require.NoError(t, err)
		require.True(t, ticket.Settled)
		assert.Equal(t, int64(25), *ticket.Amount)
		assert.Equal(t, entry.Add(95*time.Minute), *ticket.ExitAt)

		clk.Advance(3 * time.Hour)
		_, err = svc.Settle(context.Background(), "k7px2m")
		require.ErrorIs(t, err, domain.ErrTicketAlreadySettled)

		stored, _ := repo.get("K7PX2M")
		assert.Equal(t, int64(25), *stored.Amount)
		assert.Equal(t, entry.Add(95*time.Minute), *stored.ExitAt)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := NewTicketService(newFakeTicketRepo(), clock.NewFixed(entry), clock.NewCalendar(time.UTC))

		_, err := svc.Settle(context.Background(), "NOPE22")
		require.ErrorIs(t, err, domain.ErrTicketNotFound)
	})

	t.Run("clock behind entry charges base fee", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry})
		svc := NewTicketService(repo, clock.NewFixed(entry.Add(-time.Minute)), clock.NewCalendar(time.UTC))

		ticket, err := svc.Settle(context.Background(), "K7PX2M")
		require.NoError(t, err)
		assert.Equal(t, int64(15), *ticket.Amount)
	})

	t.Run("concurrent settles produce exactly one winner", func(t *testing.T) {
		repo := newFakeTicketRepo()
		repo.put(domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry})
		svc := NewTicketService(repo, clock.NewFixed(entry.Add(70*time.Minute)), clock.NewCalendar(time.UTC))

		const attempts = 16
		var wins, conflicts atomic.Int32
		var g errgroup.Group
		for i := 0; i < attempts; i++ {
			g.Go(func() error {
				_, err := svc.Settle(context.Background(), "K7PX2M")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrTicketAlreadySettled):
					conflicts.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(attempts-1), conflicts.Load())

		stored, _ := repo.get("K7PX2M")
		assert.Equal(t, int64(20), *stored.Amount)
	})
}

func TestTicketService_SettleRepositoryOutcomes(t *testing.T) {
	t.Parallel()

	entry := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	now := entry.Add(30 * time.Minute)
	open := domain.Ticket{ID: "K7PX2M", Plate: "ABC123", EntryAt: entry}

	t.Run("zero rows affected is a lost race", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockTicketRepository(ctrl)
		repo.EXPECT().GetTicket(gomock.Any(), "K7PX2M").Return(open, nil)
		repo.EXPECT().SettleTicket(gomock.Any(), "K7PX2M", now, int64(15)).Return(int64(0), nil)

		svc := NewTicketService(repo, clock.NewFixed(now), clock.NewCalendar(time.UTC))
		_, err := svc.Settle(context.Background(), "K7PX2M")
		require.ErrorIs(t, err, domain.ErrTicketAlreadySettled)
	})

	t.Run("store failure is passed through as internal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockTicketRepository(ctrl)
		storeErr := errors.New("connection reset")
		repo.EXPECT().GetTicket(gomock.Any(), "K7PX2M").Return(open, nil)
		repo.EXPECT().SettleTicket(gomock.Any(), "K7PX2M", now, int64(15)).Return(int64(0), storeErr)

		svc := NewTicketService(repo, clock.NewFixed(now), clock.NewCalendar(time.UTC))
		_, err := svc.Settle(context.Background(), "K7PX2M")
		require.ErrorIs(t, err, storeErr)
		assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	})

	t.Run("already settled never reaches the write", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockTicketRepository(ctrl)
		settled := open
		settled.Settle(entry.Add(time.Minute), 15)
		repo.EXPECT().GetTicket(gomock.Any(), "K7PX2M").Return(settled, nil)

		svc := NewTicketService(repo, clock.NewFixed(now), clock.NewCalendar(time.UTC))
		_, err := svc.Settle(context.Background(), "K7PX2M")
		require.ErrorIs(t, err, domain.ErrTicketAlreadySettled)
	})

	t.Run("issue does not retry on other store errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockTicketRepository(ctrl)
		storeErr := errors.New("disk full")
		repo.EXPECT().CreateTicket(gomock.Any(), gomock.Any()).Return(storeErr).Times(1)

		svc := NewTicketService(repo, clock.NewFixed(now), clock.NewCalendar(time.UTC))
		_, err := svc.Issue(context.Background(), IssueTicketInput{Plate: "ABC123"})
		require.ErrorIs(t, err, storeErr)
	})
}

func TestTicketService_FindActiveByPlate(t *testing.T) {
	t.Parallel()

	entry := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	repo := newFakeTicketRepo()
	repo.put(domain.Ticket{ID: "OLDER2", Plate: "ABC123", EntryAt: entry})
	repo.put(domain.Ticket{ID: "NEWER2", Plate: "ABC123", EntryAt: entry.Add(time.Hour)})
	paid := domain.Ticket{ID: "PAID22", Plate: "ABC123", EntryAt: entry.Add(2 * time.Hour)}
	paid.Settle(entry.Add(3*time.Hour), 20)
	repo.put(paid)
	svc := NewTicketService(repo, clock.NewFixed(entry.Add(4*time.Hour)), clock.NewCalendar(time.UTC))

	ticket, err := svc.FindActiveByPlate(context.Background(), " abc123 ")
	require.NoError(t, err)
	assert.Equal(t, "NEWER2", ticket.ID)

	_, err = svc.FindActiveByPlate(context.Background(), "ZZZ999")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)

	_, err = svc.FindActiveByPlate(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrPlateRequired)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (f *fakeTicketRepo) put(t domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = t
}

func (f *fakeTicketRepo) get(id string) (domain.Ticket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	return t, ok
}

func (f *fakeTicketRepo) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

func (f *fakeTicketRepo) CreateTicket(_ context.Context, ticket domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tickets[ticket.ID]; exists {
		return domain.ErrDuplicateTicketID
	}
	f.tickets[ticket.ID] = ticket
	return nil
}

func (f *fakeTicketRepo) GetTicket(_ context.Context, id string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	return t, nil
}

func (f *fakeTicketRepo) GetActiveTicketByPlate(_ context.Context, plate string) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []domain.Ticket
	for _, t := range f.tickets {
		if t.Plate == plate && !t.Settled {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return domain.Ticket{}, domain.ErrTicketNotFound
	}
	sort.Slice(open, func(i, j int) bool { return open[i].EntryAt.After(open[j].EntryAt) })
	return open[0], nil
}

func (f *fakeTicketRepo) SettleTicket(_ context.Context, id string, exitAt time.Time, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || !t.Settle(exitAt, amount) {
		return 0, nil
	}
	f.tickets[id] = t
	return 1, nil
}

type sequenceIDs struct {
	ids []string
	i   int
}

func (s *sequenceIDs) NewID() (string, error) {
	if s.i >= len(s.ids) {
		return "", errors.New("out of ids")
	}
	id := s.ids[s.i]
	s.i++
	return id, nil
}

func (s *sequenceIDs) Normalize(id string) string {
	return id
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{now: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
