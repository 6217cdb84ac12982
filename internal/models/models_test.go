package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "validation_error", Code(Errorf(ErrValidation, "bad")))
	assert.Equal(t, "contention", Code(fmt.Errorf("lock: %w", ErrContention)))
	assert.Equal(t, "limit_exceeded", Code(Errorf(ErrLimitExceeded, "cap")))
	assert.Equal(t, "internal_error", Code(errors.New("x")))
	assert.Equal(t, "internal_error", Code(ErrStorage))

	err := Errorf(ErrInsufficientBalance, "need %s more", "5")
	assert.Equal(t, "need 5 more", err.Error())
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestHistoryFilter_Match(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	v := TransactionView{Transaction: Transaction{SenderID: "a", ReceiverID: "b", Amount: decimal.NewFromInt(50), CreatedAt: at}}

	credit, debit := DirCredit, DirDebit
	before, after := at.Add(-time.Hour), at.Add(time.Hour)
	lo, hi := decimal.NewFromInt(60), decimal.NewFromInt(40)

	assert.True(t, HistoryFilter{}.Match("a", v))
	assert.True(t, HistoryFilter{}.Match("b", v))
	assert.False(t, HistoryFilter{}.Match("c", v))
	assert.True(t, HistoryFilter{Direction: &credit}.Match("b", v))
	assert.False(t, HistoryFilter{Direction: &credit}.Match("a", v))
	assert.True(t, HistoryFilter{Direction: &debit}.Match("a", v))
	assert.True(t, HistoryFilter{From: &before, To: &after}.Match("a", v))
	assert.False(t, HistoryFilter{From: &after}.Match("a", v))
	assert.False(t, HistoryFilter{To: &before}.Match("a", v))
	assert.False(t, HistoryFilter{MinAmount: &lo}.Match("a", v))
	assert.False(t, HistoryFilter{MaxAmount: &hi}.Match("a", v))
}
