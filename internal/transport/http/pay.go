package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cimillas/ultimate-parking/internal/domain"
)

// TicketSettler is the minimal interface needed to charge a ticket.
type TicketSettler interface {
	Settle(ctx context.Context, id string) (domain.Ticket, error)
}

type settleResponse struct {
	ID      string    `json:"id"`
	Plate   string    `json:"plate"`
	EntryAt time.Time `json:"entryAt"`
	ExitAt  time.Time `json:"exitAt"`
	Amount  int64     `json:"amount"`
}

// HandleSettleTicket returns an HTTP handler that charges a ticket once.
func HandleSettleTicket(svc TicketSettler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := svc.Settle(r.Context(), pathParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, logger, "settle ticket", err)
			return
		}

		resp := settleResponse{
			ID:      ticket.ID,
			Plate:   ticket.Plate,
			EntryAt: ticket.EntryAt.UTC(),
		}
		if ticket.ExitAt != nil {
			resp.ExitAt = ticket.ExitAt.UTC()
		}
		if ticket.Amount != nil {
			resp.Amount = *ticket.Amount
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
