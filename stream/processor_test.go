package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/glassechidna/lambdalogs/entry"
	"github.com/glassechidna/lambdalogs/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	nextID  int64
	entries []*entry.LogEntry
	failOn  string
}

func (f *fakeWriter) InsertEntry(ctx context.Context, e *entry.LogEntry) (int64, error) {
	if f.failOn != "" && e.Session != nil && *e.Session == f.failOn {
		return 0, &store.Error{Op: "inserting log entry", Err: errors.New("connection reset")}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.entries = append(f.entries, e)
	return f.nextID, nil
}

func kinesisEvent(payloads ...string) *events.KinesisEvent {
	event := &events.KinesisEvent{}
	for i, p := range payloads {
		record := events.KinesisEventRecord{}
		record.Kinesis.Data = []byte(p)
		record.Kinesis.SequenceNumber = fmt.Sprintf("seq-%d", i)
		event.Records = append(event.Records, record)
	}
	return event
}

func TestProcessAllSucceed(t *testing.T) {
	var payloads []string
	for i := 0; i < 25; i++ {
		payloads = append(payloads, fmt.Sprintf(`1549454904899;{"session":"s%d","n":%d}`, i, i))
	}

	w := &fakeWriter{}
	p := &Processor{Now: fixedNow}
	results, err := p.Process(context.Background(), kinesisEvent(payloads...), w)
	require.NoError(t, err)
	require.Len(t, results, 25)

	ids := map[int64]bool{}
	for i, r := range results {
		ids[r.ID] = true
		require.NotNil(t, r.Entry.Session)
		assert.Equal(t, fmt.Sprintf("s%d", i), *r.Entry.Session)
		assert.Equal(t, int64(1549454905), r.Entry.Time)
	}
	assert.Len(t, ids, 25)
	assert.Len(t, w.entries, 25)
}

func TestProcessEmptyBatch(t *testing.T) {
	results, err := (&Processor{}).Process(context.Background(), &events.KinesisEvent{}, &fakeWriter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessInsertFailureFailsBatch(t *testing.T) {
	w := &fakeWriter{failOn: "bad"}
	p := &Processor{Now: fixedNow}

	results, err := p.Process(context.Background(), kinesisEvent(
		`1;{"session":"ok1"}`,
		`1;{"session":"bad"}`,
		`1;{"session":"ok2"}`,
	), w)
	require.Error(t, err)
	assert.Nil(t, results)

	var storeErr *store.Error
	assert.True(t, errors.As(err, &storeErr))
}

func TestProcessDecodeFailureFailsBatch(t *testing.T) {
	w := &fakeWriter{}
	_, err := (&Processor{Now: fixedNow}).Process(context.Background(), kinesisEvent(
		`1;{"session":"ok"}`,
		`1;{broken`,
	), w)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "seq-1", decodeErr.Sequence)
}

func TestProcessMalformedParameters(t *testing.T) {
	_, err := (&Processor{Now: fixedNow}).Process(context.Background(), kinesisEvent(
		`1;{"parameters":"a=b"}`,
	), &fakeWriter{})
	require.Error(t, err)

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.True(t, errors.Is(err, entry.ErrMalformedParameters))
}

type blockingWriter struct {
	inFlight int32
	peak     int32
	release  chan struct{}
}

func (b *blockingWriter) InsertEntry(ctx context.Context, e *entry.LogEntry) (int64, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&b.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&b.peak, peak, n) {
			break
		}
	}
	<-b.release
	atomic.AddInt32(&b.inFlight, -1)
	return int64(n), nil
}

func TestProcessIssuesInsertsConcurrently(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}

	done := make(chan error)
	go func() {
		_, err := (&Processor{Now: fixedNow}).Process(context.Background(), kinesisEvent(
			`1;{}`, `2;{}`, `3;{}`,
		), w)
		done <- err
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.peak) == 3 }, 2*time.Second, 10*time.Millisecond)
	close(w.release)
	require.NoError(t, <-done)
}
