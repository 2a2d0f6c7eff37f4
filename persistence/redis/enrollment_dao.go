package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/util"
	"go.uber.org/zap"
)

const ENROLLMENT_KEY string = "ENR"
const ENROLLMENT_SUBJECT_KEY string = "ENRSUB"
const READY_KEY string = "READY"
const CLAIM_KEY string = "CLAIM"

var _ persistence.EnrollmentStore = new(redisEnrollmentDao)

// redisEnrollmentDao keeps enrollments in a hash per flow, a subject index
// hash for the one-enrollment-per-(flow,subject) invariant, and a global
// ready sorted set scored by waitUntil millis (0 for ACTIVE). Claims are
// plain SET NX PX keys so an expired lease frees a crashed holder.
type redisEnrollmentDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Enrollment]
}

func NewRedisEnrollmentDao(conf Config) *redisEnrollmentDao {
	return &redisEnrollmentDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Enrollment](),
	}
}

func (rdao *redisEnrollmentDao) Create(flowId string, flowVersion int, subjectId string) (*model.Enrollment, bool, error) {
	ctx := context.Background()
	indexKey := rdao.getNamespaceKey(ENROLLMENT_SUBJECT_KEY, flowId)
	enrollmentId := uuid.New().String()
	created, err := rdao.redisClient.HSetNX(ctx, indexKey, subjectId, enrollmentId).Result()
	if err != nil {
		return nil, false, persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		existingId, err := rdao.redisClient.HGet(ctx, indexKey, subjectId).Result()
		if err != nil {
			return nil, false, persistence.StorageLayerError{Message: err.Error()}
		}
		enrollment, err := rdao.Get(flowId, existingId)
		if err != nil {
			return nil, false, err
		}
		return enrollment, false, nil
	}
	now := time.Now()
	enrollment := &model.Enrollment{
		Id:          enrollmentId,
		FlowId:      flowId,
		FlowVersion: flowVersion,
		SubjectId:   subjectId,
		Status:      model.ENROLLMENT_ACTIVE,
		Variables:   make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rdao.Save(enrollment); err != nil {
		return nil, false, err
	}
	return enrollment, true, nil
}

func (rdao *redisEnrollmentDao) Get(flowId string, enrollmentId string) (*model.Enrollment, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(ENROLLMENT_KEY, flowId)
	data, err := rdao.redisClient.HGet(ctx, key, enrollmentId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "enrollment", Id: enrollmentId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.encoderDecoder.Decode([]byte(data))
}

func (rdao *redisEnrollmentDao) IsEnrolled(flowId string, subjectId string) (bool, error) {
	ctx := context.Background()
	indexKey := rdao.getNamespaceKey(ENROLLMENT_SUBJECT_KEY, flowId)
	exists, err := rdao.redisClient.HExists(ctx, indexKey, subjectId).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return exists, nil
}

func (rdao *redisEnrollmentDao) Save(enrollment *model.Enrollment) error {
	ctx := context.Background()
	enrollment.UpdatedAt = time.Now()
	data, err := rdao.encoderDecoder.Encode(*enrollment)
	if err != nil {
		return err
	}
	key := rdao.getNamespaceKey(ENROLLMENT_KEY, enrollment.FlowId)
	if err := rdao.redisClient.HSet(ctx, key, enrollment.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving enrollment", zap.String("flowId", enrollment.FlowId), zap.String("enrollmentId", enrollment.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return rdao.syncReadySet(ctx, enrollment)
}

func (rdao *redisEnrollmentDao) syncReadySet(ctx context.Context, enrollment *model.Enrollment) error {
	readyKey := rdao.getNamespaceKey(READY_KEY)
	member := enrollment.FlowId + ":" + enrollment.Id
	switch enrollment.Status {
	case model.ENROLLMENT_ACTIVE:
		err := rdao.redisClient.ZAdd(ctx, readyKey, rd.Z{Score: 0, Member: member}).Err()
		if err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	case model.ENROLLMENT_WAITING:
		score := float64(enrollment.WaitUntil.UnixMilli())
		err := rdao.redisClient.ZAdd(ctx, readyKey, rd.Z{Score: score, Member: member}).Err()
		if err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	default:
		err := rdao.redisClient.ZRem(ctx, readyKey, member).Err()
		if err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	return nil
}

func (rdao *redisEnrollmentDao) LoadReady(now time.Time, limit int) ([]*model.Enrollment, error) {
	ctx := context.Background()
	readyKey := rdao.getNamespaceKey(READY_KEY)
	opt := &rd.ZRangeBy{
		Min:   strconv.Itoa(0),
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}
	members, err := rdao.redisClient.ZRangeByScore(ctx, readyKey, opt).Result()
	if err != nil {
		logger.Error("error loading ready enrollments", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments := make([]*model.Enrollment, 0, len(members))
	for _, member := range members {
		flowId, enrollmentId, ok := splitMember(member)
		if !ok {
			continue
		}
		enrollment, err := rdao.Get(flowId, enrollmentId)
		if err != nil {
			logger.Error("ready enrollment not loadable", zap.String("member", member), zap.Error(err))
			continue
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, nil
}

func splitMember(member string) (string, string, bool) {
	idx := strings.LastIndex(member, ":")
	if idx <= 0 || idx == len(member)-1 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}

func (rdao *redisEnrollmentDao) Claim(enrollmentId string, lease time.Duration) (bool, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(CLAIM_KEY, enrollmentId)
	ok, err := rdao.redisClient.SetNX(ctx, key, "1", lease).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return ok, nil
}

func (rdao *redisEnrollmentDao) Release(enrollmentId string) error {
	ctx := context.Background()
	key := rdao.getNamespaceKey(CLAIM_KEY, enrollmentId)
	if err := rdao.redisClient.Del(ctx, key).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisEnrollmentDao) Pause(flowId string, enrollmentId string) error {
	return rdao.changeStatus(flowId, enrollmentId, model.ENROLLMENT_PAUSED)
}

func (rdao *redisEnrollmentDao) Resume(flowId string, enrollmentId string) error {
	return rdao.changeStatus(flowId, enrollmentId, model.ENROLLMENT_ACTIVE)
}

func (rdao *redisEnrollmentDao) changeStatus(flowId string, enrollmentId string, status model.EnrollmentStatus) error {
	enrollment, err := rdao.Get(flowId, enrollmentId)
	if err != nil {
		return err
	}
	if enrollment.Status.Terminal() {
		return persistence.StorageLayerError{Message: "enrollment in terminal state"}
	}
	now := time.Now()
	if status == model.ENROLLMENT_PAUSED {
		enrollment.PausedAt = &now
	} else {
		enrollment.PausedAt = nil
	}
	// WaitUntil is set only while WAITING. A resumed enrollment re-enters its
	// wait through the Delay step, which recomputes from the anchor.
	enrollment.WaitUntil = nil
	enrollment.Status = status
	return rdao.Save(enrollment)
}

func (rdao *redisEnrollmentDao) Remove(flowId string, enrollmentId string) error {
	ctx := context.Background()
	enrollment, err := rdao.Get(flowId, enrollmentId)
	if err != nil {
		return err
	}
	readyKey := rdao.getNamespaceKey(READY_KEY)
	pipe := rdao.redisClient.Pipeline()
	pipe.HDel(ctx, rdao.getNamespaceKey(ENROLLMENT_KEY, flowId), enrollmentId)
	pipe.HDel(ctx, rdao.getNamespaceKey(ENROLLMENT_SUBJECT_KEY, flowId), enrollment.SubjectId)
	pipe.ZRem(ctx, readyKey, flowId+":"+enrollmentId)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rdao *redisEnrollmentDao) ListByFlow(flowId string) ([]*model.Enrollment, error) {
	ctx := context.Background()
	key := rdao.getNamespaceKey(ENROLLMENT_KEY, flowId)
	all, err := rdao.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	enrollments := make([]*model.Enrollment, 0, len(all))
	for _, data := range all {
		enrollment, err := rdao.encoderDecoder.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, nil
}

func (rdao *redisEnrollmentDao) CountByStatus(flowId string) (map[model.EnrollmentStatus]int, error) {
	enrollments, err := rdao.ListByFlow(flowId)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.EnrollmentStatus]int)
	for _, enrollment := range enrollments {
		counts[enrollment.Status]++
	}
	return counts, nil
}
