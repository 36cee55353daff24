package bootstrap

import (
	"context"
	"net/http"
	"sync"

	"pacelab/internal/adapters/artifacts/badgerstore"
	chclient "pacelab/internal/adapters/clickhouse"
	"pacelab/internal/adapters/config"
	"pacelab/internal/adapters/kafka"
	pgclient "pacelab/internal/adapters/postgres"
	redisclient "pacelab/internal/adapters/redis"
	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/events"
	"pacelab/internal/ml/classifier"
	"pacelab/internal/ml/cluster"
	chrepo "pacelab/internal/repository/clickhouse"
	"pacelab/internal/services/modelops"
	"pacelab/internal/workers"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	// Core
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker
	Version      string

	// Infrastructure
	PG    *pgclient.Client
	CH    *chclient.Client // nil unless CLICKHOUSE_ENABLED
	Redis *redisclient.Client

	// Layers
	Repos      *Repositories
	Adapters   *Adapters
	Services   *Services
	Background *Background

	metricsServer *http.Server

	// Lifecycle
	Lifecycle *Lifecycle
	Context   context.Context
	Cancel    context.CancelFunc
	WG        *sync.WaitGroup
}

// Repositories groups all data access
type Repositories struct {
	Activities     activity.Repository
	Models         model.Repository
	Audit          audit.Repository
	Feedback       audit.FeedbackRepository
	Classification classification.Repository
}

// Adapters groups external adapters. Optional ones stay nil when disabled.
type Adapters struct {
	Artifacts     model.ArtifactStore
	Badger        *badgerstore.Store // set when ARTIFACT_BACKEND=badger
	AuditMirror   *chrepo.AuditMirror
	KafkaProducer *kafka.Producer
	Events        *events.Publisher
}

// Services groups the domain and ML services
type Services struct {
	Registry   *model.Registry
	Trail      *audit.Trail
	Trainer    *cluster.Trainer
	Classifier *classifier.Classifier
	ModelOps   *modelops.Service
}

// Background groups periodic processing
type Background struct {
	WorkerScheduler *workers.Scheduler
}

// NewContainer creates an empty container. version tags error reports.
func NewContainer(version string) *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Version:    version,
		Repos:      &Repositories{},
		Adapters:   &Adapters{},
		Services:   &Services{},
		Background: &Background{},
		Lifecycle:  NewLifecycle(),
		Context:    ctx,
		Cancel:     cancel,
		WG:         &sync.WaitGroup{},
	}
}

// Init builds every layer in dependency order. Unlike the serve path, CLI
// commands need errors rather than a crash, so nothing here panics.
func (c *Container) Init() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"config", c.initConfig},
		{"infrastructure", c.initInfrastructure},
		{"repositories", c.initRepositories},
		{"adapters", c.initAdapters},
		{"services", c.initServices},
		{"background", c.initBackground},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return errors.Wrapf(err, "init %s", step.name)
		}
	}
	return nil
}

// MustInit is Init for long-running processes: any failure is fatal
func (c *Container) MustInit() {
	if err := c.Init(); err != nil {
		if c.Log != nil {
			c.Log.Fatalf("initialization failed: %v", err)
		}
		panic("initialization failed: " + err.Error())
	}
}

// Start runs the background workers and the metrics endpoint
func (c *Container) Start() error {
	c.Log.Info("Starting background processing...")

	c.startMetricsServer()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown releases everything in reverse dependency order
func (c *Container) Shutdown() {
	if c.Log == nil {
		c.Cancel()
		return
	}
	c.Log.Info("Initiating graceful shutdown...")

	c.Lifecycle.Shutdown(c)
	c.Cancel()
}
