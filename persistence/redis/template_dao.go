package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
)

const TEMPLATE_KEY string = "TEMPLATE"

var _ persistence.TemplateStore = new(redisTemplateDao)

type redisTemplateDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.MessageTemplate]
}

func NewRedisTemplateDao(conf Config) *redisTemplateDao {
	return &redisTemplateDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.MessageTemplate](),
	}
}

func (rdao *redisTemplateDao) Save(template *model.MessageTemplate) error {
	ctx := context.Background()
	data, err := rdao.encoderDecoder.Encode(*template)
	if err != nil {
		return err
	}
	if err := rdao.redisClient.HSet(ctx, rdao.getNamespaceKey(TEMPLATE_KEY), template.Id, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisTemplateDao) Get(id string) (*model.MessageTemplate, error) {
	ctx := context.Background()
	data, err := rdao.redisClient.HGet(ctx, rdao.getNamespaceKey(TEMPLATE_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "template", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.encoderDecoder.Decode([]byte(data))
}
