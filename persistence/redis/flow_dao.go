package redis

import (
	"context"
	"errors"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
)

const FLOW_KEY string = "FLOW"
const FLOW_VERSION_KEY string = "FLOWV"

var _ persistence.FlowStore = new(redisFlowDao)

// redisFlowDao keeps the latest definition in one hash and every activated
// version in a per-flow hash, so enrollments pinned to an older version keep
// resolving against the steps they started with.
type redisFlowDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.FlowDef]
}

func NewRedisFlowDao(conf Config) *redisFlowDao {
	return &redisFlowDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowDef](),
	}
}

func (rdao *redisFlowDao) Save(flow *model.FlowDef) error {
	ctx := context.Background()
	data, err := rdao.encoderDecoder.Encode(*flow)
	if err != nil {
		return err
	}
	pipe := rdao.redisClient.Pipeline()
	pipe.HSet(ctx, rdao.getNamespaceKey(FLOW_KEY), flow.Id, string(data))
	pipe.HSet(ctx, rdao.getNamespaceKey(FLOW_VERSION_KEY, flow.Id), strconv.Itoa(flow.Version), string(data))
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisFlowDao) Get(id string) (*model.FlowDef, error) {
	ctx := context.Background()
	data, err := rdao.redisClient.HGet(ctx, rdao.getNamespaceKey(FLOW_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "flow", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.encoderDecoder.Decode([]byte(data))
}

func (rdao *redisFlowDao) GetVersion(id string, version int) (*model.FlowDef, error) {
	ctx := context.Background()
	data, err := rdao.redisClient.HGet(ctx, rdao.getNamespaceKey(FLOW_VERSION_KEY, id), strconv.Itoa(version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "flow", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.encoderDecoder.Decode([]byte(data))
}

func (rdao *redisFlowDao) List() ([]*model.FlowDef, error) {
	ctx := context.Background()
	all, err := rdao.redisClient.HGetAll(ctx, rdao.getNamespaceKey(FLOW_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	flows := make([]*model.FlowDef, 0, len(all))
	for _, data := range all {
		flow, err := rdao.encoderDecoder.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (rdao *redisFlowDao) Delete(id string) error {
	ctx := context.Background()
	pipe := rdao.redisClient.Pipeline()
	pipe.HDel(ctx, rdao.getNamespaceKey(FLOW_KEY), id)
	pipe.Del(ctx, rdao.getNamespaceKey(FLOW_VERSION_KEY, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
