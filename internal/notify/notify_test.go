package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueue_ExpiresAndCaps(t *testing.T) {
	now := time.Unix(1000, 0)
	q := NewQueue(time.Second, 2)
	q.now = func() time.Time { return now }

	q.Notify(Info, "one")
	q.Notify(Error, "two")
	q.Notify(Success, "three")
	q.Notify(Info, "")

	active := q.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "two", active[0].Message)
	assert.Equal(t, "three", active[1].Message)

	now = now.Add(1500 * time.Millisecond)
	active = q.Active()
	require.Len(t, active, 1, "errors stay twice as long")
	assert.Equal(t, Error, active[0].Level)

	q.Dismiss(active[0].ID)
	_, ok := q.Latest()
	assert.False(t, ok)
}

func TestNotifyf_NilIsSafe(t *testing.T) {
	Notifyf(nil, Error, "boom %d", 1)

	q := NewQueue(0, 0)
	Notifyf(q, Warning, "retry in %ds", 4)
	latest, ok := q.Latest()
	require.True(t, ok)
	assert.Equal(t, "retry in 4s", latest.Message)
	assert.Equal(t, "warning", latest.Level.String())
}

func TestMulti_FansOutToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	q := NewQueue(0, 0)
	m := Multi{q, Log{Logger: zap.New(core)}, nil}

	m.Notify(Error, "export failed")

	assert.Len(t, q.Active(), 1)
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "export failed", entries[0].ContextMap()["message"])
}
