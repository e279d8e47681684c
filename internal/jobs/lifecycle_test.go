package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLifecycle(opts ...Option) (*Lifecycle, *MemoryStore, *fakeClock) {
	clock := newFakeClock()
	st := NewMemoryStore()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewLifecycle(st, opts...), st, clock
}

func TestCreateStartsPending(t *testing.T) {
	ctx := context.Background()
	lc, st, clock := newLifecycle()

	job, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, "hello", job.UserMessage)
	assert.Equal(t, "u1_c1", job.SessionID)
	assert.True(t, job.CreatedAt.Equal(clock.Now()))
	assert.Nil(t, job.Response)
	assert.Nil(t, job.CompletedAt)
	assert.Len(t, job.ID, 26, "ULID text form")
	assert.Equal(t, 1, st.Len())
}

func TestCreateIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	lc, st, _ := newLifecycle()

	// Same millisecond for every job; uniqueness comes from the entropy.
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		job, err := lc.Create(ctx, "m", "s")
		require.NoError(t, err)
		_, dup := seen[job.ID]
		require.False(t, dup, "duplicate id %s", job.ID)
		seen[job.ID] = struct{}{}
	}
	assert.Equal(t, 1000, st.Len())
}

func TestStatusOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newLifecycle()
	job, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)

	require.NoError(t, lc.MarkProcessing(ctx, job.ID))
	got, _, _ := lc.Get(ctx, job.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)

	ok, err := lc.Complete(ctx, job.ID, "hi", true, "")
	require.NoError(t, err)
	require.True(t, ok)

	// A late MarkProcessing never drags a finished job backwards.
	require.NoError(t, lc.MarkProcessing(ctx, job.ID))
	got, _, _ = lc.Get(ctx, job.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Response)
	assert.Equal(t, "hi", *got.Response)
	assert.Nil(t, got.Error)
}

func TestMarkProcessingUnknown(t *testing.T) {
	lc, _, _ := newLifecycle()
	err := lc.MarkProcessing(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
}

func TestCompleteUnknownMutatesNothing(t *testing.T) {
	ctx := context.Background()
	lc, st, _ := newLifecycle()
	existing, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)

	ok, err := lc.Complete(ctx, "unknown", "hi", true, "")
	assert.False(t, ok)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	assert.Equal(t, 1, st.Len())
	got, _, _ := lc.Get(ctx, existing.ID)
	assert.Equal(t, existing, got)
}

func TestCompleteFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newLifecycle()
	job, _ := lc.Create(ctx, "hello", "u1_c1")

	ok, err := lc.Complete(ctx, job.ID, "", false, "workflow crashed")
	require.NoError(t, err)
	require.True(t, ok)

	got, _, _ := lc.Get(ctx, job.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "workflow crashed", *got.Error)
	assert.Nil(t, got.Response)
	assert.NotNil(t, got.CompletedAt)
}

func TestFailWithoutReasonUsesDefault(t *testing.T) {
	ctx := context.Background()
	lc, _, _ := newLifecycle()
	job, _ := lc.Create(ctx, "hello", "u1_c1")

	_, err := lc.Fail(ctx, job.ID, nil)
	require.NoError(t, err)
	got, _, _ := lc.Get(ctx, job.ID)
	require.NotNil(t, got.Error)
	assert.Equal(t, defaultFailureReason, *got.Error)
}

func TestCompleteTwiceLastWriterWins(t *testing.T) {
	ctx := context.Background()
	lc, _, clock := newLifecycle()
	job, _ := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, lc.MarkProcessing(ctx, job.ID))

	clock.Advance(time.Second)
	_, err := lc.Complete(ctx, job.ID, "", false, "engine unreachable")
	require.NoError(t, err)
	first, _, _ := lc.Get(ctx, job.ID)
	require.NotNil(t, first.CompletedAt)

	clock.Advance(time.Second)
	ok, err := lc.Complete(ctx, job.ID, "late answer", true, "")
	require.NoError(t, err)
	assert.True(t, ok)

	second, _, _ := lc.Get(ctx, job.ID)
	assert.Equal(t, models.StatusCompleted, second.Status, "later completion overwrites status")
	require.NotNil(t, second.Response)
	assert.Equal(t, "late answer", *second.Response)
	require.NotNil(t, second.Error, "earlier error survives the race")
	assert.Equal(t, "engine unreachable", *second.Error)
	assert.True(t, second.CompletedAt.Equal(*first.CompletedAt), "completedAt is set once")
}

func TestCompleteTwiceStrictIsNoop(t *testing.T) {
	ctx := context.Background()
	lc, _, clock := newLifecycle(WithStrictCompletion(true))
	job, _ := lc.Create(ctx, "hello", "u1_c1")

	_, err := lc.Complete(ctx, job.ID, "", false, "engine unreachable")
	require.NoError(t, err)
	first, _, _ := lc.Get(ctx, job.ID)

	clock.Advance(time.Second)
	ok, err := lc.Complete(ctx, job.ID, "late answer", true, "")
	require.NoError(t, err)
	assert.True(t, ok)

	second, _, _ := lc.Get(ctx, job.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusFailed, second.Status)
}

func TestStatusProcessingTime(t *testing.T) {
	ctx := context.Background()
	lc, _, clock := newLifecycle()
	job, _ := lc.Create(ctx, "hello", "u1_c1")

	clock.Advance(750 * time.Millisecond)
	view, ok, err := lc.Status(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(750), view.ProcessingTime)

	_, _ = lc.Complete(ctx, job.ID, "hi", true, "")
	clock.Advance(10 * time.Second)
	view, _, _ = lc.Status(ctx, job.ID)
	assert.Equal(t, int64(750), view.ProcessingTime, "frozen at completion")
	assert.Equal(t, models.StatusCompleted, view.Status)

	_, ok, err = lc.Status(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentCompletionsKeepFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	lc := NewLifecycle(NewMemoryStore())
	job, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = lc.Complete(ctx, job.ID, "r", i%2 == 0, "e")
		}(i)
	}
	wg.Wait()

	got, _, _ := lc.Get(ctx, job.ID)
	assert.True(t, got.Status.Terminal())
	assert.NotNil(t, got.CompletedAt)
}

func TestLifecycleOnRedisStore(t *testing.T) {
	ctx := context.Background()
	lc := NewLifecycle(newRedisStore(t))

	job, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)
	require.NoError(t, lc.MarkProcessing(ctx, job.ID))
	ok, err := lc.Complete(ctx, job.ID, "hi", true, "")
	require.NoError(t, err)
	require.True(t, ok)

	view, found, err := lc.Status(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.StatusCompleted, view.Status)
	require.NotNil(t, view.Response)
	assert.Equal(t, "hi", *view.Response)
	assert.GreaterOrEqual(t, view.ProcessingTime, int64(0))
}

func TestTimestampsStampedAtMillisecondPrecision(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	clock.Advance(1_900 * time.Microsecond)
	lc := NewLifecycle(NewMemoryStore(), WithClock(clock.Now))

	job, err := lc.Create(ctx, "hello", "u1_c1")
	require.NoError(t, err)
	assert.Zero(t, job.CreatedAt.Nanosecond()%int(time.Millisecond))

	clock.Advance(1_200 * time.Microsecond)
	_, err = lc.Complete(ctx, job.ID, "hi", true, "")
	require.NoError(t, err)

	got, _, _ := lc.Get(ctx, job.ID)
	require.NotNil(t, got.CompletedAt)
	assert.Zero(t, got.CompletedAt.Nanosecond()%int(time.Millisecond))

	view, _, _ := lc.Status(ctx, job.ID)
	require.NotNil(t, view.CompletedAt)
	assert.Equal(t, *view.CompletedAt-view.CreatedAt, view.ProcessingTime)
}
