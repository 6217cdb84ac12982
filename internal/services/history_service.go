package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/ledger-backend/internal/models"
	"github.com/baharkarakas/ledger-backend/internal/policy"
	repo "github.com/baharkarakas/ledger-backend/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type HistoryQuery struct {
	Type      string // "", "credit" or "debit"
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
}

// HistoryEntry is one transaction seen from the requesting user's side.
type HistoryEntry struct {
	ID              string      `json:"id"`
	Amount          json.Number `json:"amount"`
	Type            string      `json:"type"`
	Status          string      `json:"status"`
	Date            time.Time   `json:"date"`
	OtherParty      string      `json:"otherParty"`
	OtherPartyEmail string      `json:"otherPartyEmail"`
}

type DailyFlow struct {
	Date     string      `json:"date"`
	Sent     json.Number `json:"sent"`
	Received json.Number `json:"received"`
}

type FlowSummary struct {
	TotalSent     json.Number `json:"totalSent"`
	TotalReceived json.Number `json:"totalReceived"`
	NetFlow       json.Number `json:"netFlow"`
}

type AnalyticsReport struct {
	ChartData []DailyFlow `json:"chartData"`
	Summary   FlowSummary `json:"summary"`
}

// HistoryService reads committed records only. It takes no locks.
type HistoryService struct {
	ledger repo.Ledger
	loc    *time.Location
	now    func() time.Time
}

func NewHistoryService(ledger repo.Ledger, reporting *time.Location) *HistoryService {
	if reporting == nil {
		reporting = time.UTC
	}
	return &HistoryService{ledger: ledger, loc: reporting, now: time.Now}
}

func (s *HistoryService) ListHistory(ctx context.Context, userID string, q HistoryQuery) ([]HistoryEntry, error) {
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	views, err := s.ledger.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, s.storageFault("list history", userID, err)
	}
	out := make([]HistoryEntry, 0, len(views))
	for _, v := range views {
		out = append(out, entryFor(userID, v))
	}
	return out, nil
}

func (q HistoryQuery) filter() (models.HistoryFilter, error) {
	f := models.HistoryFilter{
		From:      q.From,
		To:        q.To,
		MinAmount: q.MinAmount,
		MaxAmount: q.MaxAmount,
		Order:     models.NewestFirst,
	}
	switch q.Type {
	case "":
	case string(models.DirCredit), string(models.DirDebit):
		d := models.Direction(q.Type)
		f.Direction = &d
	default:
		return f, models.Errorf(models.ErrValidation, "type must be credit or debit")
	}
	limit := q.Limit
	switch {
	case limit < 0:
		return f, models.Errorf(models.ErrValidation, "limit must not be negative")
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	f.Limit = &limit
	return f, nil
}

func entryFor(userID string, v models.TransactionView) HistoryEntry {
	e := HistoryEntry{
		ID:     v.ID,
		Amount: json.Number(v.Amount.StringFixed(policy.MaxScale)),
		Status: string(v.Status),
		Date:   v.CreatedAt,
	}
	if v.SenderID == userID {
		e.Type = string(models.DirDebit)
		e.OtherParty, e.OtherPartyEmail = v.Receiver.DisplayName(), v.Receiver.Username
	} else {
		e.Type = string(models.DirCredit)
		e.OtherParty, e.OtherPartyEmail = v.Sender.DisplayName(), v.Sender.Username
	}
	return e
}

var exportHeader = []string{"id", "date", "amount", "sender", "senderEmail", "receiver", "receiverEmail", "status"}

// Export writes the user's full history as CSV, newest first.
func (s *HistoryService) Export(ctx context.Context, userID string, w io.Writer) error {
	views, err := s.ledger.ListTransactions(ctx, userID, models.HistoryFilter{Order: models.NewestFirst})
	if err != nil {
		return s.storageFault("export history", userID, err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, v := range views {
		if err := cw.Write([]string{
			v.ID,
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.Amount.StringFixed(policy.MaxScale),
			v.Sender.DisplayName(),
			v.Sender.Username,
			v.Receiver.DisplayName(),
			v.Receiver.Username,
			string(v.Status),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Analytics totals sent and received amounts per reporting-zone calendar day
// over the period ending now.
func (s *HistoryService) Analytics(ctx context.Context, userID, period string) (AnalyticsReport, error) {
	now := s.now().In(s.loc)
	var since time.Time
	switch period {
	case "", "7days":
		since = now.AddDate(0, 0, -7)
	case "30days":
		since = now.AddDate(0, 0, -30)
	case "12months":
		since = now.AddDate(0, -12, 0)
	default:
		return AnalyticsReport{}, models.Errorf(models.ErrValidation, "period must be one of 7days, 30days, 12months")
	}

	views, err := s.ledger.ListTransactions(ctx, userID, models.HistoryFilter{
		From:  &since,
		Order: models.OldestFirst,
	})
	if err != nil {
		return AnalyticsReport{}, s.storageFault("analytics", userID, err)
	}

	type bucket struct{ sent, received decimal.Decimal }
	days := map[string]*bucket{}
	sent, received := decimal.Zero, decimal.Zero
	for _, v := range views {
		day := v.CreatedAt.In(s.loc).Format(time.DateOnly)
		b := days[day]
		if b == nil {
			b = &bucket{}
			days[day] = b
		}
		if v.SenderID == userID {
			b.sent = b.sent.Add(v.Amount)
			sent = sent.Add(v.Amount)
		} else {
			b.received = b.received.Add(v.Amount)
			received = received.Add(v.Amount)
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := AnalyticsReport{ChartData: make([]DailyFlow, 0, len(keys))}
	for _, k := range keys {
		report.ChartData = append(report.ChartData, DailyFlow{
			Date:     k,
			Sent:     money(days[k].sent),
			Received: money(days[k].received),
		})
	}
	report.Summary = FlowSummary{
		TotalSent:     money(sent),
		TotalReceived: money(received),
		NetFlow:       money(received.Sub(sent)),
	}
	return report, nil
}

func (s *HistoryService) storageFault(op, userID string, err error) error {
	slog.Error(op+" failed", "user_id", userID, "err", err)
	return models.Errorf(models.ErrStorage, "%s failed", op)
}

func money(d decimal.Decimal) json.Number { return json.Number(d.StringFixed(policy.MaxScale)) }
