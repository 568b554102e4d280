package app

import (
	"context"
	"log/slog"

	"github.com/cimillas/ultimate-parking/internal/clock"
	"github.com/cimillas/ultimate-parking/internal/domain"
	"github.com/cimillas/ultimate-parking/internal/metrics"
)

type CashCutRepository interface {
	SumSettledForDay(ctx context.Context, day string) (domain.DailyTotal, error)
}

type CashCutService struct {
	repo     CashCutRepository
	secret   SecretVerifier
	clock    clock.Clock
	calendar clock.Calendar
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewCashCutService(repo CashCutRepository, secret SecretVerifier, clk clock.Clock, cal clock.Calendar, opts ...CashCutServiceOption) *CashCutService {
	svc := &CashCutService{
		repo:     repo,
		secret:   secret,
		clock:    clk,
		calendar: cal,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CashCutServiceOption func(*CashCutService)

func WithCashCutLogger(l *slog.Logger) CashCutServiceOption {
	return func(s *CashCutService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCashCutMetrics(m *metrics.Metrics) CashCutServiceOption {
	return func(s *CashCutService) {
		s.metrics = m
	}
}

type DailyTotalInput struct {
	// Day is YYYY-MM-DD; empty means the current civil day.
	Day    string
	Secret string
}

// DailyTotal sums the settled tickets of one civil day. An empty day is zero/zero.
func (s *CashCutService) DailyTotal(ctx context.Context, in DailyTotalInput) (domain.DailyTotal, error) {
	if s.secret == nil || !s.secret.Verify(in.Secret) {
		s.metrics.IncrementCashCutAuthFailures()
		s.logger.WarnContext(ctx, "cash cut rejected: wrong secret")
		return domain.DailyTotal{}, domain.ErrUnauthorized
	}

	day := in.Day
	if day == "" {
		day = s.calendar.Day(s.clock.Now())
	} else {
		parsed, err := clock.ParseDay(day)
		if err != nil {
			return domain.DailyTotal{}, domain.ErrInvalidDay
		}
		day = parsed
	}

	total, err := s.repo.SumSettledForDay(ctx, day)
	if err != nil {
		return domain.DailyTotal{}, err
	}
	total.Day = day
	return total, nil
}
