package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cimillas/ultimate-parking/internal/app"
	"github.com/cimillas/ultimate-parking/internal/domain"
	"github.com/cimillas/ultimate-parking/internal/metrics"
)

type stubTickets struct {
	issued    app.IssueTicketInput
	ticket    domain.Ticket
	quote     app.Quote
	gotID     string
	gotPlate  string
	err       error
}

func (s *stubTickets) Issue(_ context.Context, in app.IssueTicketInput) (domain.Ticket, error) {
	s.issued = in
	return s.ticket, s.err
}

func (s *stubTickets) Quote(_ context.Context, id string) (app.Quote, error) {
	s.gotID = id
	return s.quote, s.err
}

func (s *stubTickets) FindActiveByPlate(_ context.Context, plate string) (domain.Ticket, error) {
	s.gotPlate = plate
	return s.ticket, s.err
}

func (s *stubTickets) Settle(_ context.Context, id string) (domain.Ticket, error) {
	s.gotID = id
	return s.ticket, s.err
}

type stubCashCut struct {
	in    app.DailyTotalInput
	total domain.DailyTotal
	err   error
}

func (s *stubCashCut) DailyTotal(_ context.Context, in app.DailyTotalInput) (domain.DailyTotal, error) {
	s.in = in
	return s.total, s.err
}

func newStubRouter(t *testing.T, tickets *stubTickets, cash *stubCashCut) http.Handler {
	t.Helper()
	if tickets == nil {
		tickets = &stubTickets{}
	}
	if cash == nil {
		cash = &stubCashCut{}
	}
	reg := prometheus.NewRegistry()
	return NewRouter(RouterConfig{
		Tickets:  tickets,
		CashCut:  cash,
		Store:    stubPinger{},
		Logger:   slog.New(slog.DiscardHandler),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
