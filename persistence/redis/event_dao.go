package redis

import (
	"context"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
)

const EVENT_KEY string = "EVENTS"

var _ persistence.EventLog = new(redisEventDao)

type redisEventDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Event]
}

func NewRedisEventDao(conf Config) *redisEventDao {
	return &redisEventDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Event](),
	}
}

func (rdao *redisEventDao) Append(event *model.Event) error {
	ctx := context.Background()
	data, err := rdao.encoderDecoder.Encode(*event)
	if err != nil {
		return err
	}
	key := rdao.getNamespaceKey(EVENT_KEY, event.EnrollmentId)
	if err := rdao.redisClient.RPush(ctx, key, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisEventDao) GetByEnrollment(enrollmentId string) ([]*model.Event, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(EVENT_KEY, enrollmentId)
	items, err := rdao.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	events := make([]*model.Event, 0, len(items))
	for _, item := range items {
		event, err := rdao.encoderDecoder.Decode([]byte(item))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
