package outbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"nostrkit.dev/pkg/encoders/envelopes/okenvelope"
	"nostrkit.dev/pkg/encoders/event"
	"nostrkit.dev/pkg/encoders/kind"
	"nostrkit.dev/pkg/encoders/timestamp"
)

func TestAggregateSucceedsAtThreshold(t *testing.T) {
	rec := &OutboxRecord{Targets: map[string]*TargetStatus{
		"wss://r1": {State: Succeeded},
		"wss://r2": {State: Failed},
	}}
	assert.Equal(t, AggSucceeded, rec.Aggregate(1))
}

func TestAggregateFailsWhenNoPendingAndBelowThreshold(t *testing.T) {
	rec := &OutboxRecord{Targets: map[string]*TargetStatus{
		"wss://r1": {State: Failed},
		"wss://r2": {State: Failed},
	}}
	assert.Equal(t, AggFailed, rec.Aggregate(1))
}

func TestAggregateInProgressWhilePending(t *testing.T) {
	rec := &OutboxRecord{Targets: map[string]*TargetStatus{
		"wss://r1": {State: Pending},
		"wss://r2": {State: Failed},
	}}
	assert.Equal(t, AggInProgress, rec.Aggregate(1))
}

func TestClassifyRelayReason(t *testing.T) {
	err := errors.New("msg: rate-limited: slow down")
	cause, reason, detail := classify(err)
	assert.Equal(t, CauseRelayReason, cause)
	assert.Equal(t, okenvelope.ReasonRateLimited, reason)
	assert.Equal(t, "slow down", detail)
}

func TestClassifyTimeout(t *testing.T) {
	err := errors.New("context deadline exceeded")
	cause, _, _ := classify(err)
	assert.Equal(t, CauseTimeout, cause)
}

func TestMinePoWFindsDifficulty(t *testing.T) {
	e := event.New()
	e.Kind = kind.TextNote
	e.Content = "pow test"
	e.CreatedAt = timestamp.Now()
	e.Pubkey = make([]byte, 32)

	ok := MinePoW(e, 8, 1_000_000)
	assert.True(t, ok, "mining 8 leading zero bits should succeed well within the iteration budget")

	found := false
	for _, tg := range e.Tags {
		if tg.Key() == "nonce" {
			found = true
		}
	}
	assert.True(t, found, "a nonce tag must be present after mining")
}
