package redis

import (
	"context"
	"testing"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/nudgeworks/journey/model"
	"github.com/stretchr/testify/require"
)

func testDaoConfig(t *testing.T) Config {
	client := rd.NewUniversalClient(&rd.UniversalOptions{Addrs: []string{"localhost:6379"}})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not reachable on localhost:6379")
	}
	// Fresh namespace per run keeps tests independent of leftover keys.
	return Config{
		Addrs:     []string{"localhost:6379"},
		Namespace: "test-" + uuid.New().String()[:8],
	}
}

func TestRedisEnrollmentDao(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, dao *redisEnrollmentDao){
		"create is idempotent per subject": testCreateIdempotent,
		"ready set follows status":         testReadySet,
		"claim lease":                      testClaimLease,
		"resume of a waiting enrollment":   testResumeWhileWaiting,
		"remove frees the subject slot":    testRemove,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewRedisEnrollmentDao(testDaoConfig(t)))
		})
	}
}

func testCreateIdempotent(t *testing.T, dao *redisEnrollmentDao) {
	first, created, err := dao.Create("f1", 1, "s1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := dao.Create("f1", 2, "s1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.Id, second.Id)
	require.Equal(t, 1, second.FlowVersion)
}

func testReadySet(t *testing.T, dao *redisEnrollmentDao) {
	enrollment, _, err := dao.Create("f1", 1, "s1")
	require.NoError(t, err)

	ready, err := dao.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, enrollment.Id, ready[0].Id)

	future := time.Now().Add(time.Hour)
	enrollment.Status = model.ENROLLMENT_WAITING
	enrollment.WaitUntil = &future
	require.NoError(t, dao.Save(enrollment))

	ready, err = dao.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, ready)

	ready, err = dao.LoadReady(future.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	enrollment.Status = model.ENROLLMENT_COMPLETED
	enrollment.WaitUntil = nil
	require.NoError(t, dao.Save(enrollment))

	ready, err = dao.LoadReady(future.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Empty(t, ready)
}

func testClaimLease(t *testing.T, dao *redisEnrollmentDao) {
	enrollment, _, err := dao.Create("f1", 1, "s1")
	require.NoError(t, err)

	held, err := dao.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	blocked, err := dao.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.False(t, blocked)

	require.NoError(t, dao.Release(enrollment.Id))
	reclaimed, err := dao.Claim(enrollment.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, reclaimed)
}

func testResumeWhileWaiting(t *testing.T, dao *redisEnrollmentDao) {
	enrollment, _, err := dao.Create("f1", 1, "s1")
	require.NoError(t, err)
	future := time.Now().Add(time.Hour)
	enrollment.Status = model.ENROLLMENT_WAITING
	enrollment.WaitUntil = &future
	require.NoError(t, dao.Save(enrollment))

	require.NoError(t, dao.Pause("f1", enrollment.Id))
	paused, err := dao.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_PAUSED, paused.Status)
	require.Nil(t, paused.WaitUntil)

	require.NoError(t, dao.Resume("f1", enrollment.Id))
	resumed, err := dao.Get("f1", enrollment.Id)
	require.NoError(t, err)
	require.Equal(t, model.ENROLLMENT_ACTIVE, resumed.Status)
	require.Nil(t, resumed.WaitUntil)

	ready, err := dao.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
}

func testRemove(t *testing.T, dao *redisEnrollmentDao) {
	enrollment, _, err := dao.Create("f1", 1, "s1")
	require.NoError(t, err)

	require.NoError(t, dao.Remove("f1", enrollment.Id))
	_, err = dao.Get("f1", enrollment.Id)
	require.Error(t, err)

	enrolled, err := dao.IsEnrolled("f1", "s1")
	require.NoError(t, err)
	require.False(t, enrolled)

	ready, err := dao.LoadReady(time.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, ready)
}
