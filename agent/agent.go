package agent

import (
	"sync"

	"github.com/nudgeworks/journey/analytics"
	"github.com/nudgeworks/journey/collaborator"
	"github.com/nudgeworks/journey/config"
	"github.com/nudgeworks/journey/engine"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence"
	"github.com/nudgeworks/journey/persistence/memory"
	"github.com/nudgeworks/journey/persistence/redis"
	"github.com/nudgeworks/journey/processor"
	"github.com/nudgeworks/journey/rest"
	"github.com/nudgeworks/journey/trigger"
)

type storage struct {
	flows       persistence.FlowStore
	enrollments persistence.EnrollmentStore
	events      persistence.EventLog
	engagements persistence.EngagementStore
	subjects    persistence.SubjectStore
	templates   persistence.TemplateStore
}

// Agent assembles and runs the whole engine process: storage, flow service,
// collaborators, step processors, trigger evaluators, the execution loop and
// the admin http server.
type Agent struct {
	Config config.Config

	storage     storage
	flowService *flow.Service
	messaging   collaborator.Messaging
	segments    collaborator.Segment
	engine      *engine.Engine
	httpServer  *rest.Server

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config:    conf,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupStorage,
		a.setupFlowService,
		a.setupCollaborators,
		a.setupEngine,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAnalytics() error {
	collectorType := analytics.NOOP_DATA_COLLECTOR
	if a.Config.AnalyticsFile != "" {
		collectorType = analytics.LOG_FILE_DATA_COLLECTOR
	}
	return analytics.InitDataCollector(analytics.DataCollectorConfig{
		FileName:      a.Config.AnalyticsFile,
		CollectorType: collectorType,
	})
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		conf := redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.storage = storage{
			flows:       redis.NewRedisFlowDao(conf),
			enrollments: redis.NewRedisEnrollmentDao(conf),
			events:      redis.NewRedisEventDao(conf),
			engagements: redis.NewRedisEngagementDao(conf),
			subjects:    redis.NewRedisSubjectDao(conf),
			templates:   redis.NewRedisTemplateDao(conf),
		}
	default:
		a.storage = storage{
			flows:       memory.NewInMemFlowStore(),
			enrollments: memory.NewInMemEnrollmentStore(),
			events:      memory.NewInMemEventLog(),
			engagements: memory.NewInMemEngagementStore(),
			subjects:    memory.NewInMemSubjectStore(),
			templates:   memory.NewInMemTemplateStore(),
		}
	}
	return nil
}

func (a *Agent) setupFlowService() error {
	a.flowService = flow.NewService(a.storage.flows)
	return nil
}

func (a *Agent) setupCollaborators() error {
	a.messaging = collaborator.NewLogMessaging()
	a.segments = collaborator.NewExprSegment(a.storage.subjects)
	return nil
}

func (a *Agent) setupEngine() error {
	processors := processor.NewRegistry(
		processor.NewMessageProcessor(a.messaging, a.storage.subjects, a.storage.templates, a.storage.engagements),
		processor.NewDelayProcessor(),
		processor.NewConditionProcessor(a.storage.subjects, a.storage.engagements, a.segments),
		processor.NewActionProcessor(a.storage.subjects, a.Config.FieldAllowList),
		processor.NewExternalCallProcessor(a.storage.subjects, a.Config.HttpCallTimeout),
	)
	triggers := trigger.NewRegistry(
		trigger.NewNewSubjectEvaluator(a.storage.subjects, a.storage.enrollments, a.Config.TriggerLookback),
		trigger.NewSegmentEvaluator(a.storage.subjects, a.storage.enrollments, a.segments, a.Config.TriggerLookback),
		trigger.NewScheduledDateEvaluator(a.storage.subjects, a.storage.enrollments, a.Config.PollInterval),
		trigger.NewNoopEvaluator(model.TRIGGER_EXTERNAL),
		trigger.NewNoopEvaluator(model.TRIGGER_MANUAL),
	)
	a.engine = engine.NewEngine(&a.Config, a.flowService, a.storage.enrollments, a.storage.engagements, a.storage.events, triggers, processors, &a.wg)
	a.engine.Start()
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.flowService, a.engine, a.storage.enrollments, a.storage.events, a.storage.engagements, a.storage.subjects, a.storage.templates)
	return err
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		func() error {
			a.engine.Stop()
			return nil
		},
		a.httpServer.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
