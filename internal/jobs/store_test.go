package jobs

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"async-chat-broker/internal/apperr"
	"async-chat-broker/internal/models"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 0, nil)
}

func storeImpls(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func testJob(id string, created time.Time) models.Job {
	return models.Job{
		ID:          id,
		Status:      models.StatusPending,
		UserMessage: "hello",
		SessionID:   "u1_c1",
		CreatedAt:   created.UTC(),
	}
}

func TestStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	created := time.UnixMilli(1_700_000_000_000)
	for name, st := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Put(ctx, testJob("a", created)))

			got, ok, err := st.Get(ctx, "a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "hello", got.UserMessage)
			assert.True(t, got.CreatedAt.Equal(created))

			// last write wins
			replaced := testJob("a", created)
			replaced.UserMessage = "again"
			require.NoError(t, st.Put(ctx, replaced))
			got, _, _ = st.Get(ctx, "a")
			assert.Equal(t, "again", got.UserMessage)

			require.NoError(t, st.Delete(ctx, "a"))
			_, ok, err = st.Get(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.Ping(ctx))
		})
	}
}

func TestStoreForEach(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for name, st := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"x", "y", "z"} {
				require.NoError(t, st.Put(ctx, testJob(id, base.Add(time.Duration(i)*time.Second))))
			}
			var seen []string
			require.NoError(t, st.ForEach(ctx, func(j models.Job) bool {
				seen = append(seen, j.ID)
				return true
			}))
			sort.Strings(seen)
			assert.Equal(t, []string{"x", "y", "z"}, seen)

			count := 0
			require.NoError(t, st.ForEach(ctx, func(models.Job) bool {
				count++
				return false
			}))
			assert.Equal(t, 1, count, "returning false stops iteration")
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	created := time.UnixMilli(1_700_000_000_000)
	for name, st := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Update(ctx, "missing", func(*models.Job) (bool, error) { return true, nil })
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.ErrNotFound))

			require.NoError(t, st.Put(ctx, testJob("u", created)))
			got, err := st.Update(ctx, "u", func(j *models.Job) (bool, error) {
				j.Status = models.StatusProcessing
				return true, nil
			})
			require.NoError(t, err)
			assert.Equal(t, models.StatusProcessing, got.Status)

			stored, _, _ := st.Get(ctx, "u")
			assert.Equal(t, models.StatusProcessing, stored.Status)

			// unchanged mutations are not written back
			_, err = st.Update(ctx, "u", func(j *models.Job) (bool, error) {
				j.Status = models.StatusFailed
				return false, nil
			})
			require.NoError(t, err)
			stored, _, _ = st.Get(ctx, "u")
			assert.Equal(t, models.StatusProcessing, stored.Status)
		})
	}
}

func TestRedisStoreForEachDropsExpiredIndexEntries(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedisStore(client, time.Minute, nil)

	require.NoError(t, st.Put(ctx, testJob("old", time.Now())))
	mr.FastForward(2 * time.Minute)

	visited := 0
	require.NoError(t, st.ForEach(ctx, func(models.Job) bool {
		visited++
		return true
	}))
	assert.Zero(t, visited)
	n, err := client.ZCard(ctx, "chatjob:index").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStoreForEachAcrossBatches(t *testing.T) {
	ctx := context.Background()
	st := newRedisStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	total := 2*readBatch + 17
	for i := 0; i < total; i++ {
		require.NoError(t, st.Put(ctx, testJob(fmt.Sprintf("job-%03d", i), base.Add(time.Duration(i)*time.Millisecond))))
	}

	var seen []string
	require.NoError(t, st.ForEach(ctx, func(j models.Job) bool {
		seen = append(seen, j.ID)
		return true
	}))
	require.Len(t, seen, total)
	assert.Equal(t, "job-000", seen[0], "oldest first")
	assert.Equal(t, fmt.Sprintf("job-%03d", total-1), seen[total-1])
}

func TestRedisStoreForEachCreatedBefore(t *testing.T) {
	ctx := context.Background()
	st := newRedisStore(t)
	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, st.Put(ctx, testJob("old", base.Add(-time.Hour))))
	require.NoError(t, st.Put(ctx, testJob("edge", base)))
	require.NoError(t, st.Put(ctx, testJob("new", base.Add(time.Millisecond))))

	var seen []string
	require.NoError(t, st.ForEachCreatedBefore(ctx, base.Add(500*time.Microsecond), func(j models.Job) bool {
		seen = append(seen, j.ID)
		return true
	}))
	assert.Equal(t, []string{"old", "edge"}, seen)
}
