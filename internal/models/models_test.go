package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionJoinSplit(t *testing.T) {
	sid := JoinSession("u1", "c1")
	assert.Equal(t, "u1_c1", sid)
	assert.Equal(t, "c1", ChatIDFromSession(sid))

	// A user id containing the separator is split at its first underscore.
	sid = JoinSession("u_1", "c2_x")
	assert.Equal(t, "u_1_c2_x", sid)
	assert.Equal(t, "1_c2_x", ChatIDFromSession(sid))

	// Chat ids may contain the separator when the user id does not.
	assert.Equal(t, "c2_x", ChatIDFromSession(JoinSession("u1", "c2_x")))

	assert.Equal(t, "", ChatIDFromSession("nounderscore"))
}

func TestParseSession(t *testing.T) {
	key, ok := ParseSession("u1_c2_x")
	require.True(t, ok)
	assert.Equal(t, SessionKey{UserID: "u1", ChatID: "c2_x"}, key)
	assert.Equal(t, "u1_c2_x", key.String())

	_, ok = ParseSession("plain")
	assert.False(t, ok)
}

func TestStatusOrdering(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusProcessing.Rank())
	assert.Less(t, StatusProcessing.Rank(), StatusCompleted.Rank())
	assert.Equal(t, StatusCompleted.Rank(), StatusFailed.Rank())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestViewProcessingTime(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	job := Job{ID: "j1", Status: StatusProcessing, UserMessage: "hello", CreatedAt: created}

	v := job.View(created.Add(1500 * time.Millisecond))
	assert.Equal(t, int64(1500), v.ProcessingTime)
	assert.Nil(t, v.CompletedAt)

	done := created.Add(2 * time.Second)
	job.Status = StatusCompleted
	job.CompletedAt = &done
	job.Response = StringPtr("hi")
	v = job.View(created.Add(time.Hour))
	assert.Equal(t, int64(2000), v.ProcessingTime)
	require.NotNil(t, v.CompletedAt)
	assert.Equal(t, done.UnixMilli(), *v.CompletedAt)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"j1","status":"completed","userMessage":"hello","response":"hi",
		"createdAt":1700000000000,"completedAt":1700000002000,"processingTime":2000}`, string(raw))
}

func TestViewProcessingTimeMatchesEmittedMillis(t *testing.T) {
	created := time.Unix(1_700_000_000, 1_900_000)   // .0019s
	completed := time.Unix(1_700_000_000, 3_100_000) // .0031s
	job := Job{ID: "j1", Status: StatusCompleted, CreatedAt: created, CompletedAt: &completed}

	v := job.View(completed.Add(time.Minute))
	require.NotNil(t, v.CompletedAt)
	assert.Equal(t, *v.CompletedAt-v.CreatedAt, v.ProcessingTime)
	assert.Equal(t, int64(2), v.ProcessingTime)

	running := Job{ID: "j2", Status: StatusProcessing, CreatedAt: created}
	v = running.View(completed)
	assert.Equal(t, completed.UnixMilli()-v.CreatedAt, v.ProcessingTime)
}
