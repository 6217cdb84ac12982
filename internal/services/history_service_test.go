package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/ledger-backend/internal/models"
)

// historyFixture commits T1 (bob -> alice, 50, D1) and T2 (alice -> carol,
// 200, D2) using a controllable clock.
func historyFixture(t *testing.T) (*fixture, *HistoryService, string, [2]models.Transaction) {
	t.Helper()
	d1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := d1
	f := newFixture(t, time.Second, defaultLimits(), WithClock(func() time.Time { return now }))
	alice := f.user(t, "alice", "1000")
	bob := f.user(t, "bob", "1000")
	carol := f.user(t, "carol", "0")

	ctx := context.Background()
	t1, err := f.svc.Transfer(ctx, TransferRequest{SenderID: bob, ReceiverID: alice, Amount: dec("50")})
	require.NoError(t, err)
	now = d1.Add(48 * time.Hour)
	t2, err := f.svc.Transfer(ctx, TransferRequest{SenderID: alice, ReceiverID: carol, Amount: dec("200")})
	require.NoError(t, err)

	h := NewHistoryService(f.repos.Ledger, time.UTC)
	h.now = func() time.Time { return now.Add(time.Hour) }
	return f, h, alice, [2]models.Transaction{t1, t2}
}

func ids(entries []HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestListHistory_Filters(t *testing.T) {
	t.Parallel()
	_, h, alice, txns := historyFixture(t)
	t1, t2 := txns[0], txns[1]
	ctx := context.Background()

	all, err := h.ListHistory(ctx, alice, HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID, t1.ID}, ids(all), "newest first")

	credit, err := h.ListHistory(ctx, alice, HistoryQuery{Type: "credit"})
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, ids(credit))
	assert.Equal(t, "credit", credit[0].Type)
	assert.Equal(t, "50.00", string(credit[0].Amount))
	assert.Equal(t, "bob Test", credit[0].OtherParty)
	assert.Equal(t, "bob@example.com", credit[0].OtherPartyEmail)

	debit, err := h.ListHistory(ctx, alice, HistoryQuery{Type: "debit"})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID}, ids(debit))
	assert.Equal(t, "carol Test", debit[0].OtherParty)

	minAmount := dec("100")
	big, err := h.ListHistory(ctx, alice, HistoryQuery{MinAmount: &minAmount})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID}, ids(big))

	maxAmount := dec("100")
	small, err := h.ListHistory(ctx, alice, HistoryQuery{MaxAmount: &maxAmount})
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, ids(small))

	from := t1.CreatedAt.Add(time.Hour)
	recent, err := h.ListHistory(ctx, alice, HistoryQuery{From: &from})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID}, ids(recent))

	to := t1.CreatedAt
	early, err := h.ListHistory(ctx, alice, HistoryQuery{To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, ids(early), "to bound is inclusive")

	one, err := h.ListHistory(ctx, alice, HistoryQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{t2.ID}, ids(one))
}

func TestListHistory_RejectsBadQuery(t *testing.T) {
	t.Parallel()
	_, h, alice, _ := historyFixture(t)

	_, err := h.ListHistory(context.Background(), alice, HistoryQuery{Type: "refund"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.ListHistory(context.Background(), alice, HistoryQuery{Limit: -1})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHistoryQuery_LimitClamp(t *testing.T) {
	t.Parallel()
	f, err := HistoryQuery{Limit: 10000}.filter()
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, *f.Limit)

	f, err = HistoryQuery{}.filter()
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, *f.Limit)
}

func TestExport_WritesCSV(t *testing.T) {
	t.Parallel()
	_, h, alice, txns := historyFixture(t)

	var buf bytes.Buffer
	require.NoError(t, h.Export(context.Background(), alice, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "date", "amount", "sender", "senderEmail", "receiver", "receiverEmail", "status"}, rows[0])
	assert.Equal(t, txns[1].ID, rows[1][0])
	assert.Equal(t, "200.00", rows[1][2])
	assert.Equal(t, "alice Test", rows[1][3])
	assert.Equal(t, "carol@example.com", rows[1][6])
	assert.Equal(t, "success", rows[1][7])
	assert.Equal(t, txns[0].ID, rows[2][0])
}

func TestAnalytics(t *testing.T) {
	t.Parallel()
	_, h, alice, _ := historyFixture(t)

	rep, err := h.Analytics(context.Background(), alice, "")
	require.NoError(t, err)
	require.Len(t, rep.ChartData, 2)
	assert.Equal(t, DailyFlow{Date: "2024-05-01", Sent: "0.00", Received: "50.00"}, rep.ChartData[0])
	assert.Equal(t, DailyFlow{Date: "2024-05-03", Sent: "200.00", Received: "0.00"}, rep.ChartData[1])
	assert.Equal(t, FlowSummary{TotalSent: "200.00", TotalReceived: "50.00", NetFlow: "-150.00"}, rep.Summary)

	_, err = h.Analytics(context.Background(), alice, "5years")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAnalytics_PeriodWindowAndZone(t *testing.T) {
	t.Parallel()
	_, h, alice, _ := historyFixture(t)

	// Ten days on, the 7day window is empty.
	base := h.now()
	h.now = func() time.Time { return base.AddDate(0, 0, 10) }
	rep, err := h.Analytics(context.Background(), alice, "7days")
	require.NoError(t, err)
	assert.Empty(t, rep.ChartData)
	assert.Equal(t, "0.00", string(rep.Summary.NetFlow))

	rep, err = h.Analytics(context.Background(), alice, "30days")
	require.NoError(t, err)
	assert.Len(t, rep.ChartData, 2)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	h.loc = tokyo
	rep, err = h.Analytics(context.Background(), alice, "12months")
	require.NoError(t, err)
	require.Len(t, rep.ChartData, 2)
	assert.Equal(t, "2024-05-01", rep.ChartData[0].Date) // 10:00 UTC is 19:00 in Tokyo
}
