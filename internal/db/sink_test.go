package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sonar/internal/sonar"
)

func TestSink_WritesAllOnClose(t *testing.T) {
	db := newTestDB(t)
	s := newTestSession(t, db)
	sink := NewSink(db, s.ID, 1000)

	const n = 300
	for seq := uint32(1); seq <= n; seq++ {
		require.NoError(t, sink.Publish(reading(seq, 1.0)))
	}
	require.NoError(t, sink.Close())

	assert.EqualValues(t, n, sink.Written())
	assert.Zero(t, sink.Failed())

	rs, err := db.Readings(context.Background(), ReadingQuery{SessionID: s.ID, Limit: n})
	require.NoError(t, err)
	require.Len(t, rs, n)
	assert.EqualValues(t, 1, rs[0].Sequence)
	assert.EqualValues(t, n, rs[n-1].Sequence)
}

func TestSink_PublishAfterClose(t *testing.T) {
	db := newTestDB(t)
	sink := NewSink(db, newTestSession(t, db).ID, 1)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "second close is a no-op")
	assert.ErrorIs(t, sink.Publish(reading(1, 1.0)), ErrSinkClosed)
}

func TestSink_FailedWritesAreCounted(t *testing.T) {
	db := newTestDB(t)
	sink := NewSink(db, "no-such-session", 4)
	require.NoError(t, sink.Publish(reading(1, 1.0)))
	require.NoError(t, sink.Close())

	assert.EqualValues(t, 1, sink.Failed())
	assert.Zero(t, sink.Written())
}

func TestSink_FullQueue(t *testing.T) {
	// No writer goroutine, so the queue only fills.
	sink := &Sink{queue: make(chan sonar.Reading, 1), done: make(chan struct{})}
	require.NoError(t, sink.Publish(reading(1, 1.0)))
	assert.ErrorIs(t, sink.Publish(reading(2, 1.0)), ErrSinkFull)
}
