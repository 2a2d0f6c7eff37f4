package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
)

const SUBJECT_KEY string = "SUBJECT"
const SUBJECT_CREATED_KEY string = "SUBJECT_CREATED"
const SUBJECT_UPDATED_KEY string = "SUBJECT_UPDATED"
const LIST_KEY string = "LIST"

var _ persistence.SubjectStore = new(redisSubjectDao)

type redisSubjectDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Subject]
}

func NewRedisSubjectDao(conf Config) *redisSubjectDao {
	return &redisSubjectDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Subject](),
	}
}

func (rdao *redisSubjectDao) Get(id string) (*model.Subject, error) {
	ctx := context.Background()
	data, err := rdao.redisClient.HGet(ctx, rdao.getNamespaceKey(SUBJECT_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "subject", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.encoderDecoder.Decode([]byte(data))
}

func (rdao *redisSubjectDao) Save(subject *model.Subject) error {
	ctx := context.Background()
	now := time.Now()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	data, err := rdao.encoderDecoder.Encode(*subject)
	if err != nil {
		return err
	}
	pipe := rdao.redisClient.Pipeline()
	pipe.HSet(ctx, rdao.getNamespaceKey(SUBJECT_KEY), subject.Id, string(data))
	pipe.ZAdd(ctx, rdao.getNamespaceKey(SUBJECT_CREATED_KEY), rd.Z{Score: float64(subject.CreatedAt.UnixMilli()), Member: subject.Id})
	pipe.ZAdd(ctx, rdao.getNamespaceKey(SUBJECT_UPDATED_KEY), rd.Z{Score: float64(subject.UpdatedAt.UnixMilli()), Member: subject.Id})
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisSubjectDao) All() ([]string, error) {
	ctx := context.Background()
	ids, err := rdao.redisClient.HKeys(ctx, rdao.getNamespaceKey(SUBJECT_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ids, nil
}

func (rdao *redisSubjectDao) CreatedSince(since time.Time) ([]string, error) {
	return rdao.idsSince(SUBJECT_CREATED_KEY, since)
}

func (rdao *redisSubjectDao) UpdatedSince(since time.Time) ([]string, error) {
	return rdao.idsSince(SUBJECT_UPDATED_KEY, since)
}

func (rdao *redisSubjectDao) idsSince(key string, since time.Time) ([]string, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}
	ids, err := rdao.redisClient.ZRangeByScore(ctx, rdao.getNamespaceKey(key), opt).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ids, nil
}

func (rdao *redisSubjectDao) AddTag(subjectId string, tag string) error {
	return rdao.mutate(subjectId, func(subject *model.Subject) {
		for _, t := range subject.Tags {
			if t == tag {
				return
			}
		}
		subject.Tags = append(subject.Tags, tag)
	})
}

func (rdao *redisSubjectDao) RemoveTag(subjectId string, tag string) error {
	return rdao.mutate(subjectId, func(subject *model.Subject) {
		tags := subject.Tags[:0]
		for _, t := range subject.Tags {
			if t != tag {
				tags = append(tags, t)
			}
		}
		subject.Tags = tags
	})
}

func (rdao *redisSubjectDao) AddToList(subjectId string, listId string) error {
	ctx := context.Background()
	err := rdao.mutate(subjectId, func(subject *model.Subject) {
		for _, l := range subject.Lists {
			if l == listId {
				return
			}
		}
		subject.Lists = append(subject.Lists, listId)
	})
	if err != nil {
		return err
	}
	if err := rdao.redisClient.SAdd(ctx, rdao.getNamespaceKey(LIST_KEY, listId), subjectId).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisSubjectDao) RemoveFromList(subjectId string, listId string) error {
	ctx := context.Background()
	err := rdao.mutate(subjectId, func(subject *model.Subject) {
		lists := subject.Lists[:0]
		for _, l := range subject.Lists {
			if l != listId {
				lists = append(lists, l)
			}
		}
		subject.Lists = lists
	})
	if err != nil {
		return err
	}
	if err := rdao.redisClient.SRem(ctx, rdao.getNamespaceKey(LIST_KEY, listId), subjectId).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisSubjectDao) ListMemberCount(listId string) (int64, error) {
	ctx := context.Background()
	count, err := rdao.redisClient.SCard(ctx, rdao.getNamespaceKey(LIST_KEY, listId)).Result()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return count, nil
}

func (rdao *redisSubjectDao) UpdateField(subjectId string, field string, value string) error {
	return rdao.mutate(subjectId, func(subject *model.Subject) {
		if subject.Attributes == nil {
			subject.Attributes = make(map[string]any)
		}
		subject.Attributes[field] = value
	})
}

func (rdao *redisSubjectDao) mutate(subjectId string, fn func(*model.Subject)) error {
	subject, err := rdao.Get(subjectId)
	if err != nil {
		return err
	}
	fn(subject)
	return rdao.Save(subject)
}
