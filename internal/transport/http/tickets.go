package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/ultimate-parking/internal/app"
	"github.com/cimillas/ultimate-parking/internal/domain"
)

const maxBodyBytes = 64 << 10

// TicketIssuer is the minimal interface needed to issue tickets.
type TicketIssuer interface {
	Issue(ctx context.Context, in app.IssueTicketInput) (domain.Ticket, error)
}

// TicketQuoter is the minimal interface needed to quote a ticket.
type TicketQuoter interface {
	Quote(ctx context.Context, id string) (app.Quote, error)
}

// ActiveTicketFinder finds the open ticket for a plate.
type ActiveTicketFinder interface {
	FindActiveByPlate(ctx context.Context, plate string) (domain.Ticket, error)
}

type issueTicketRequest struct {
	Plate string `json:"plate"`
	Brand string `json:"brand"`
	Model string `json:"model"`
	Color string `json:"color"`
}

type issueTicketResponse struct {
	ID      string    `json:"id"`
	EntryAt time.Time `json:"entryAt"`
	Day     string    `json:"day"`
}

// HandleIssueTicket returns an HTTP handler for registering vehicle entries.
func HandleIssueTicket(svc TicketIssuer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueTicketRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ticket, err := svc.Issue(r.Context(), app.IssueTicketInput{
			Plate: req.Plate,
			Vehicle: domain.Vehicle{
				Brand: req.Brand,
				Model: req.Model,
				Color: req.Color,
			},
		})
		if err != nil {
			writeServiceError(w, r, logger, "issue ticket", err)
			return
		}

		writeJSON(w, http.StatusCreated, issueTicketResponse{
			ID:      ticket.ID,
			EntryAt: ticket.EntryAt.UTC(),
			Day:     ticket.Day,
		})
	}
}

type quoteResponse struct {
	ID             string    `json:"id"`
	Plate          string    `json:"plate"`
	EntryAt        time.Time `json:"entryAt"`
	ElapsedMinutes int64     `json:"elapsedMinutes"`
	Amount         int64     `json:"amount"`
}

// HandleQuoteTicket returns the live fare for an open ticket.
func HandleQuoteTicket(svc TicketQuoter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.Quote(r.Context(), pathParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, logger, "quote ticket", err)
			return
		}

		writeJSON(w, http.StatusOK, quoteResponse{
			ID:             q.TicketID,
			Plate:          q.Plate,
			EntryAt:        q.EntryAt.UTC(),
			ElapsedMinutes: q.ElapsedMinutes,
			Amount:         q.Amount,
		})
	}
}

type ticketIDResponse struct {
	ID string `json:"id"`
}

// HandleFindActiveByPlate resolves a plate to its open ticket id.
func HandleFindActiveByPlate(svc ActiveTicketFinder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := svc.FindActiveByPlate(r.Context(), pathParam(r, "plate"))
		if err != nil {
			writeServiceError(w, r, logger, "find ticket by plate", err)
			return
		}
		writeJSON(w, http.StatusOK, ticketIDResponse{ID: ticket.ID})
	}
}

// decodeBody reads a single JSON object and rejects unknown fields. It writes
// the 400 response itself and reports whether the caller may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	if decoder.More() {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}

// pathParam returns a decoded chi URL parameter. chi matches on the raw path
// when it carries escapes, so the value may still be encoded.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
