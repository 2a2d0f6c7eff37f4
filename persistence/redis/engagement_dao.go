package redis

import (
	"context"
	"time"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
)

const ENGAGEMENT_SUBJECT_KEY string = "ENG"
const ENGAGEMENT_STEP_KEY string = "ENGSTEP"

var _ persistence.EngagementStore = new(redisEngagementDao)

// redisEngagementDao records each engagement twice: per subject (for the
// since-flow-start suppression checks) and per (enrollment, step) pair (for
// Condition steps referencing a specific send).
type redisEngagementDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Engagement]
}

func NewRedisEngagementDao(conf Config) *redisEngagementDao {
	return &redisEngagementDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Engagement](),
	}
}

func (rdao *redisEngagementDao) Record(engagement *model.Engagement) error {
	ctx := context.Background()
	data, err := rdao.encoderDecoder.Encode(*engagement)
	if err != nil {
		return err
	}
	pipe := rdao.redisClient.Pipeline()
	pipe.RPush(ctx, rdao.getNamespaceKey(ENGAGEMENT_SUBJECT_KEY, engagement.SubjectId), string(data))
	if engagement.EnrollmentId != "" && engagement.StepId != "" {
		pipe.RPush(ctx, rdao.getNamespaceKey(ENGAGEMENT_STEP_KEY, engagement.EnrollmentId, engagement.StepId), string(data))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisEngagementDao) HasForStep(enrollmentId string, stepId string, engagementType model.EngagementType) (bool, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(ENGAGEMENT_STEP_KEY, enrollmentId, stepId)
	items, err := rdao.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	for _, item := range items {
		engagement, err := rdao.encoderDecoder.Decode([]byte(item))
		if err != nil {
			continue
		}
		if engagement.Type == engagementType {
			return true, nil
		}
	}
	return false, nil
}

func (rdao *redisEngagementDao) HasSince(subjectId string, engagementType model.EngagementType, since time.Time) (bool, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(ENGAGEMENT_SUBJECT_KEY, subjectId)
	items, err := rdao.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	for _, item := range items {
		engagement, err := rdao.encoderDecoder.Decode([]byte(item))
		if err != nil {
			continue
		}
		if engagement.Type == engagementType && !engagement.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}
