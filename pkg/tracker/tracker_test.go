package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartAndRecordEvent(t *testing.T) {
	tr := New(10)
	tr.Start("s1", nil)
	tr.RecordEvent("s1", "wss://r1", true)
	tr.RecordEvent("s1", "wss://r2", false) // duplicate, same id

	n, ok := tr.UniqueEvents("s1")
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, tr.ActiveCount())
}

func TestCloseMovesToClosedRing(t *testing.T) {
	tr := New(10)
	tr.Start("s1", nil)
	tr.Close("s1")

	assert.Equal(t, 0, tr.ActiveCount())
	snaps := tr.Export()
	assert.Len(t, snaps, 1)
	assert.Equal(t, "s1", snaps[0].ID)
	assert.False(t, snaps[0].ClosedAt.IsZero())
}

func TestClosedRingIsBounded(t *testing.T) {
	tr := New(3)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		tr.Start(id, nil)
		tr.Close(id)
	}
	assert.Len(t, tr.Export(), 3, "ring must never retain more than its configured capacity")
}

func TestRecordEOSEPerRelay(t *testing.T) {
	tr := New(10)
	tr.Start("s1", nil)
	tr.RecordEOSE("s1", "wss://r1")

	metrics, ok := tr.RelayMetricsFor("s1")
	assert.True(t, ok)
	assert.False(t, metrics["wss://r1"].EOSEReceivedAt.IsZero())
}

func TestUnknownSubscriptionOperationsAreNoop(t *testing.T) {
	tr := New(10)
	tr.RecordEvent("missing", "wss://r1", true)
	tr.RecordEOSE("missing", "wss://r1")
	tr.Close("missing")
	assert.Equal(t, 0, tr.ActiveCount())
}
