package ctclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekasper/certificate-transparency/cttypes"
)

// fakeLog serves entries from memory.  It models the server behaviors
// the producer has to cope with: per-request entry limits
// (under-delivery), a tree smaller than the requested range (either an
// error status or, for a lagging log, an empty entry array), and
// injected per-request failures.
type fakeLog struct {
	mu      sync.Mutex
	entries []Entry
	limit   int  // max entries per response; 0 = unlimited
	lagging bool // report an empty array instead of an error beyond the tree
	failAt  map[uint64]error

	calls [][2]uint64
}

func (f *fakeLog) GetSTH(ctx context.Context) (*cttypes.SignedTreeHead, error) {
	return &cttypes.SignedTreeHead{TreeSize: uint64(len(f.entries))}, nil
}

func (f *fakeLog) GetEntries(ctx context.Context, start, end uint64) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]uint64{start, end})

	if err := f.failAt[start]; err != nil {
		return nil, err
	}
	if start >= uint64(len(f.entries)) {
		if f.lagging {
			return []Entry{}, nil
		}
		return nil, &HTTPError{
			Status:     "400 Bad Request",
			StatusCode: http.StatusBadRequest,
			URL:        fmt.Sprintf("http://log.example/ct/v1/get-entries?start=%d&end=%d", start, end),
			Body:       []byte("start is beyond tree size"),
		}
	}

	last := min(end, uint64(len(f.entries))-1)
	entries := f.entries[start : last+1]
	if f.limit > 0 && len(entries) > f.limit {
		entries = entries[:f.limit]
	}
	return entries, nil
}

func (f *fakeLog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingConsumer struct {
	mu       sync.Mutex
	received []Entry
}

func (c *recordingConsumer) Write(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, entries...)
}

func (c *recordingConsumer) entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.received...)
}

func awaitResult(t *testing.T, resultCh <-chan Result) Result {
	t.Helper()
	select {
	case result := <-resultCh:
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not terminate")
		return Result{}
	}
}

func TestProducerUnsplitRange(t *testing.T) {
	log := &fakeLog{entries: makeTestEntries(0, 9)}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 0).Start(context.Background(), consumer))
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(10), result.Count)
	assert.Equal(t, makeTestEntries(0, 9), consumer.entries())
	assert.Equal(t, 1, log.callCount())
}

func TestProducerBatches(t *testing.T) {
	log := &fakeLog{entries: makeTestEntries(0, 9)}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 4).Start(context.Background(), consumer))
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(10), result.Count)
	assert.Equal(t, makeTestEntries(0, 9), consumer.entries())
	// Ranges [0,3], [4,7], [8,9]: exactly three requests, sized 4, 4, 2.
	assert.Equal(t, [][2]uint64{{0, 3}, {4, 7}, {8, 9}}, log.calls)
}

func TestProducerLimitingServer(t *testing.T) {
	// The server returns at most 3 entries per request; the producer
	// must advance by the count actually received and still deliver
	// the whole range.
	log := &fakeLog{entries: makeTestEntries(0, 9), limit: 3}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 0).Start(context.Background(), consumer))
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(10), result.Count)
	assert.Equal(t, makeTestEntries(0, 9), consumer.entries())
	assert.Equal(t, [][2]uint64{{0, 9}, {3, 9}, {6, 9}, {9, 9}}, log.calls)
}

func TestProducerTruncatedLog(t *testing.T) {
	// The log holds 3 entries and reports an error status beyond them.
	// Entries already delivered stand; the run fails.
	log := &fakeLog{entries: makeTestEntries(0, 2)}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 0).Start(context.Background(), consumer))
	var httpErr *HTTPError
	require.ErrorAs(t, result.Err, &httpErr)
	assert.Equal(t, uint64(3), result.Count)
	assert.Equal(t, makeTestEntries(0, 2), consumer.entries())
}

func TestProducerLaggingLog(t *testing.T) {
	// A short JSON array (rather than an error status) means the log
	// has not caught up to the requested range yet: normal completion.
	log := &fakeLog{entries: makeTestEntries(0, 2), lagging: true}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 0).Start(context.Background(), consumer))
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(3), result.Count)
	assert.Equal(t, makeTestEntries(0, 2), consumer.entries())
}

func TestProducerInvalidResponseAbortsBatch(t *testing.T) {
	// The second batch fails to decode: nothing from it reaches the
	// consumer, and the first batch's delivery is not retracted.
	log := &fakeLog{
		entries: makeTestEntries(0, 9),
		failAt:  map[uint64]error{4: &InvalidResponseError{Reason: "entry 1 is undecodable"}},
	}
	consumer := &recordingConsumer{}

	result := awaitResult(t, NewEntryProducer(log, 0, 9, 4).Start(context.Background(), consumer))
	var invalidErr *InvalidResponseError
	require.ErrorAs(t, result.Err, &invalidErr)
	assert.Equal(t, uint64(4), result.Count)
	assert.Equal(t, makeTestEntries(0, 3), consumer.entries())
	assert.Equal(t, 2, log.callCount())
}

func TestProducerStartsOnce(t *testing.T) {
	log := &fakeLog{entries: makeTestEntries(0, 9)}
	producer := NewEntryProducer(log, 0, 9, 0)

	result := awaitResult(t, producer.Start(context.Background(), &recordingConsumer{}))
	require.NoError(t, result.Err)

	result = awaitResult(t, producer.Start(context.Background(), &recordingConsumer{}))
	assert.Error(t, result.Err)
}

func TestProducerInvalidRange(t *testing.T) {
	log := &fakeLog{entries: makeTestEntries(0, 9)}
	result := awaitResult(t, NewEntryProducer(log, 9, 5, 0).Start(context.Background(), &recordingConsumer{}))
	assert.Error(t, result.Err)
	assert.Zero(t, log.callCount())
}

// pausingConsumer pauses its producer from inside Write once it has
// received pauseAt entries.
type pausingConsumer struct {
	mu       sync.Mutex
	producer *EntryProducer
	pauseAt  int
	received []Entry
	paused   bool
	pausedCh chan struct{}
}

func (c *pausingConsumer) Write(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, entries...)
	if !c.paused && len(c.received) >= c.pauseAt {
		c.producer.Pause()
		c.paused = true
		close(c.pausedCh)
	}
}

func (c *pausingConsumer) entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.received...)
}

func TestProducerPauseResume(t *testing.T) {
	log := &fakeLog{entries: makeTestEntries(0, 9)}
	producer := NewEntryProducer(log, 0, 9, 4)
	consumer := &pausingConsumer{producer: producer, pauseAt: 4, pausedCh: make(chan struct{})}

	resultCh := producer.Start(context.Background(), consumer)

	select {
	case <-consumer.pausedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never paused")
	}

	// While paused: one batch delivered, no terminal result, and no
	// further requests issued.
	assert.Equal(t, makeTestEntries(0, 3), consumer.entries())
	select {
	case result := <-resultCh:
		t.Fatalf("producer terminated while paused: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, log.callCount())

	// Pause is idempotent; a second pause must not wedge resume.
	producer.Pause()
	producer.Resume()
	producer.Resume() // and resume is too

	result := awaitResult(t, resultCh)
	require.NoError(t, result.Err)
	assert.Equal(t, uint64(10), result.Count)
	assert.Equal(t, makeTestEntries(0, 9), consumer.entries())
}

func TestProducerCancelWhilePaused(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &fakeLog{entries: makeTestEntries(0, 9)}
	producer := NewEntryProducer(log, 0, 9, 4)
	consumer := &pausingConsumer{producer: producer, pauseAt: 4, pausedCh: make(chan struct{})}

	resultCh := producer.Start(ctx, consumer)
	select {
	case <-consumer.pausedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never paused")
	}

	cancel()
	result := awaitResult(t, resultCh)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, uint64(4), result.Count)
}
