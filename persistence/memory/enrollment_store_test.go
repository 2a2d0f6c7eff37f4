package memory

import (
	"testing"
	"time"

	"github.com/nudgeworks/journey/model"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentStore(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, store *InMemEnrollmentStore){
		"create is idempotent per subject": testCreateIdempotent,
		"load ready respects status":       testLoadReady,
		"claim excludes concurrent holder": testClaim,
		"expired claim is recoverable":     testClaimExpiry,
		"terminal status leaves ready set": testTerminalNotReady,
		"pause and resume":                 testPauseResume,
		"resume of a waiting enrollment":   testResumeWhileWaiting,
		"remove frees the subject slot":    testRemove,
		"count by status":                  testCountByStatus,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewInMemEnrollmentStore())
		})
	}
}

func testCreateIdempotent(t *testing.T, store *InMemEnrollmentStore) {
	first, created, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.ENROLLMENT_ACTIVE, first.Status)
	require.Equal(t, 1, first.FlowVersion)

	second, created, err := store.Create("f1", 3, "s1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.Id, second.Id)
	require.Equal(t, 1, second.FlowVersion)

	enrolled, err := store.IsEnrolled("f1", "s1")
	require.NoError(t, err)
	require.True(t, enrolled)

	other, created, err := store.Create("f2", 1, "s1")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.Id, other.Id)
}

func testLoadReady(t *testing.T, store *InMemEnrollmentStore) {
	active, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)

	waiting, _, err := store.Create("f1", 1, "s2")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	waiting.Status = model.ENROLLMENT_WAITING
	waiting.WaitUntil = &future
	require.NoError(t, store.Save(waiting))

	due, _, err := store.Create("f1", 1, "s3")
	require.NoError(t, err)
	past := time.Now().Add(-time.Minute)
	due.Status = model.ENROLLMENT_WAITING
	due.WaitUntil = &past
	require.NoError(t, store.Save(due))

	ready, err := store.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, enrollment := range ready {
		ids[enrollment.Id] = true
	}
	require.True(t, ids[active.Id])
	require.True(t, ids[due.Id])
	require.False(t, ids[waiting.Id])

	limited, err := store.LoadReady(time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func testClaim(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)

	first, err := store.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, store.Release(enrollment.Id))
	third, err := store.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, third)
}

func testClaimExpiry(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)

	held, err := store.Claim(enrollment.Id, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)

	time.Sleep(20 * time.Millisecond)
	recovered, err := store.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, recovered)
}

func testTerminalNotReady(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)
	enrollment.Status = model.ENROLLMENT_COMPLETED
	require.NoError(t, store.Save(enrollment))

	ready, err := store.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, ready)
}

func testPauseResume(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)

	require.NoError(t, store.Pause("f1", enrollment.Id))
	paused, err := store.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_PAUSED, paused.Status)
	require.NotNil(t, paused.PausedAt)

	ready, err := store.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, ready)

	require.NoError(t, store.Resume("f1", enrollment.Id))
	resumed, err := store.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_ACTIVE, resumed.Status)
	require.Nil(t, resumed.PausedAt)

	enrollment.Status = model.ENROLLMENT_COMPLETED
	require.NoError(t, store.Save(enrollment))
	require.Error(t, store.Resume("f1", enrollment.Id))
}

func testResumeWhileWaiting(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	enrollment.Status = model.ENROLLMENT_WAITING
	enrollment.WaitUntil = &future
	require.NoError(t, store.Save(enrollment))

	require.NoError(t, store.Pause("f1", enrollment.Id))
	paused, err := store.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_PAUSED, paused.Status)
	require.Nil(t, paused.WaitUntil)

	require.NoError(t, store.Resume("f1", enrollment.Id))
	resumed, err := store.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_ACTIVE, resumed.Status)
	require.Nil(t, resumed.WaitUntil)
}

func testRemove(t *testing.T, store *InMemEnrollmentStore) {
	enrollment, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)

	require.NoError(t, store.Remove("f1", enrollment.Id))
	_, err = store.Get("f1", enrollment.Id)
	require.Error(t, err)

	enrolled, err := store.IsEnrolled("f1", "s1")
	require.NoError(t, err)
	require.False(t, enrolled)

	_, created, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)
	require.True(t, created)
}

func testCountByStatus(t *testing.T, store *InMemEnrollmentStore) {
	a, _, err := store.Create("f1", 1, "s1")
	require.NoError(t, err)
	_, _, err = store.Create("f1", 1, "s2")
	require.NoError(t, err)

	a.Status = model.ENROLLMENT_COMPLETED
	require.NoError(t, store.Save(a))

	counts, err := store.CountByStatus("f1")
	require.NoError(t, err)
	require.Equal(t, 1, counts[model.ENROLLMENT_ACTIVE])
	require.Equal(t, 1, counts[model.ENROLLMENT_COMPLETED])
}
