package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/greeter-api/internal/core"
)

const (
	defaultProcessedLimit = 100
	maxProcessedLimit     = 1000
)

// ProcessedHandlers exposes the idempotency ledger for inspection.
type ProcessedHandlers struct {
	Lister core.ProcessedRecordLister
	Logger *slog.Logger
}

type processedRow struct {
	FollowerID  string    `json:"follower_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// List handles HTTP requests for the most recently processed followers of an account.
func (h *ProcessedHandlers) List(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotImplemented,
			ErrCode: "not_supported",
			Err:     errors.New("the configured store does not support listing"),
		})
		return
	}

	owner := strings.TrimPrefix(strings.TrimSpace(r.PathValue("owner")), "@")
	if owner == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("account owner is required"),
			Field:   "owner",
		})
		return
	}
	limit, _ := ParseLimitOffset(r, defaultProcessedLimit, maxProcessedLimit)

	recs, err := h.Lister.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		RenderError(w, r, err, h.Logger)
		return
	}

	rows := make([]processedRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, processedRow{FollowerID: rec.FollowerID, ProcessedAt: rec.ProcessedAt})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"account_owner": owner,
		"followers":     rows,
	})
}
