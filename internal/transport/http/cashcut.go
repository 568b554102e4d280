package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cimillas/ultimate-parking/internal/app"
	"github.com/cimillas/ultimate-parking/internal/domain"
)

// CashCutReporter is the minimal interface needed to run a cash cut.
type CashCutReporter interface {
	DailyTotal(ctx context.Context, in app.DailyTotalInput) (domain.DailyTotal, error)
}

type cashCutRequest struct {
	Secret string `json:"secret"`
	Day    string `json:"day"`
}

type cashCutResponse struct {
	Day   string `json:"day"`
	Total int64  `json:"total"`
	Count int64  `json:"count"`
}

// HandleCashCut returns the settled revenue for a civil day.
func HandleCashCut(svc CashCutReporter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cashCutRequest
		if !decodeBody(w, r, &req) {
			return
		}

		total, err := svc.DailyTotal(r.Context(), app.DailyTotalInput{
			Day:    req.Day,
			Secret: req.Secret,
		})
		if err != nil {
			writeServiceError(w, r, logger, "cash cut", err)
			return
		}

		writeJSON(w, http.StatusOK, cashCutResponse{
			Day:   total.Day,
			Total: total.Total,
			Count: total.Count,
		})
	}
}
