package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/api/httpx"
	"github.com/baharkarakas/ledger-backend/internal/api/validate"
	"github.com/baharkarakas/ledger-backend/internal/middleware"
	"github.com/baharkarakas/ledger-backend/internal/models"
	"github.com/baharkarakas/ledger-backend/internal/policy"
	"github.com/baharkarakas/ledger-backend/internal/services"
)

type BalanceReader interface {
	Current(ctx context.Context, userID string) (decimal.Decimal, error)
}

type Transferrer interface {
	Transfer(ctx context.Context, req services.TransferRequest) (models.Transaction, error)
}

type HistoryReader interface {
	ListHistory(ctx context.Context, userID string, q services.HistoryQuery) ([]services.HistoryEntry, error)
	Export(ctx context.Context, userID string, w io.Writer) error
	Analytics(ctx context.Context, userID, period string) (services.AnalyticsReport, error)
}

type AccountHandler struct {
	Balances  BalanceReader
	Transfers Transferrer
	Reports   HistoryReader
}

func NewAccountHandler(b BalanceReader, t Transferrer, h HistoryReader) *AccountHandler {
	return &AccountHandler{Balances: b, Transfers: t, Reports: h}
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	bal, err := h.Balances.Current(r.Context(), uid)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]json.Number{
		"balance": json.Number(bal.StringFixed(policy.MaxScale)),
	})
}

type transferReq struct {
	To     string      `json:"to" validate:"required,account_id"`
	Amount json.Number `json:"amount" validate:"required"`
}

const maxIdempotencyKeyLen = 128

func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())

	var req transferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.To = strings.TrimSpace(req.To)
	if err := validate.Struct(req); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	// account ids are stored in canonical form
	to := uuid.MustParse(req.To).String()
	amount, err := policy.ParseAmount(req.Amount.String())
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "Idempotency-Key is too long", nil)
		return
	}

	txn, err := h.Transfers.Transfer(r.Context(), services.TransferRequest{
		SenderID:       uid,
		ReceiverID:     to,
		Amount:         amount,
		IdempotencyKey: key,
	})
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message":       "Transfer successful",
		"transactionId": txn.ID,
	})
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	q, err := parseHistoryQuery(r)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	entries, err := h.Reports.ListHistory(r.Context(), uid, q)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string][]services.HistoryEntry{"transactions": entries})
}

func parseHistoryQuery(r *http.Request) (services.HistoryQuery, error) {
	v := r.URL.Query()
	q := services.HistoryQuery{Type: v.Get("type")}
	var errs validate.Errs

	parseTime := func(field string) *time.Time {
		s := v.Get(field)
		if s == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
		errs = append(errs, validate.ErrField{Field: field, Msg: "must be RFC3339 or YYYY-MM-DD"})
		return nil
	}
	parseAmount := func(field string) *decimal.Decimal {
		s := v.Get(field)
		if s == "" {
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			errs = append(errs, validate.ErrField{Field: field, Msg: "must be a number"})
			return nil
		}
		return &d
	}

	q.From = parseTime("from")
	q.To = parseTime("to")
	if q.To != nil && len(v.Get("to")) == len(time.DateOnly) {
		// a bare date includes the whole day
		end := q.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		q.To = &end
	}
	q.MinAmount = parseAmount("minAmount")
	q.MaxAmount = parseAmount("maxAmount")
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			errs = append(errs, validate.ErrField{Field: "limit", Msg: "must be a positive integer"})
		}
		q.Limit = n
	}
	if len(errs) > 0 {
		return q, errs
	}
	return q, nil
}

func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	var buf bytes.Buffer
	if err := h.Reports.Export(r.Context(), uid, &buf); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *AccountHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	rep, err := h.Reports.Analytics(r.Context(), uid, r.URL.Query().Get("period"))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rep)
}
