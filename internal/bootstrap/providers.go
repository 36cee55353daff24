package bootstrap

import (
	"pacelab/internal/adapters/artifacts/badgerstore"
	"pacelab/internal/adapters/artifacts/redisstore"
	chclient "pacelab/internal/adapters/clickhouse"
	"pacelab/internal/adapters/config"
	errnoop "pacelab/internal/adapters/errors/noop"
	"pacelab/internal/adapters/errors/sentry"
	"pacelab/internal/adapters/kafka"
	pgclient "pacelab/internal/adapters/postgres"
	redisclient "pacelab/internal/adapters/redis"
	"pacelab/internal/domain/activity"
	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/events"
	"pacelab/internal/metrics"
	"pacelab/internal/ml/classifier"
	"pacelab/internal/ml/cluster"
	chrepo "pacelab/internal/repository/clickhouse"
	pgrepo "pacelab/internal/repository/postgres"
	"pacelab/internal/services/modelops"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

func (c *Container) initConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		return errors.Wrap(err, "failed to init logger")
	}

	c.Log = logger.Get()
	c.Log.Debugf("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Version, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
	return nil
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

func (c *Container) initInfrastructure() error {
	var err error

	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		return err
	}
	c.Log.Debug("✓ PostgreSQL connected")

	if c.Config.ClickHouse.Enabled {
		c.CH, err = chclient.NewClient(c.Config.ClickHouse)
		if err != nil {
			return err
		}
		c.Log.Debug("✓ ClickHouse connected")
	}

	if c.Config.Redis.Enabled || c.Config.Artifacts.Backend == "redis" {
		c.Redis, err = redisclient.NewClient(c.Config.Redis)
		if err != nil {
			return err
		}
		c.Log.Debug("✓ Redis connected")
	}

	return nil
}

// Migrate applies the embedded schema migrations
func (c *Container) Migrate() error {
	return c.PG.Migrate()
}

// ========================================
// Phase 3: Repositories
// ========================================

func (c *Container) initRepositories() error {
	db := c.PG.DB()

	c.Repos.Activities = pgrepo.NewActivityRepository(db)
	c.Repos.Models = pgrepo.NewModelRepository(db)
	c.Repos.Audit = pgrepo.NewAuditRepository(db)
	c.Repos.Feedback = pgrepo.NewFeedbackRepository(db)
	c.Repos.Classification = pgrepo.NewClassificationRepository(db)
	return nil
}

// ========================================
// Phase 4: External Adapters
// ========================================

func (c *Container) initAdapters() error {
	artifacts, badger, err := provideArtifactStore(c.Config, c.Redis, c.Log)
	if err != nil {
		return err
	}
	c.Adapters.Artifacts = artifacts
	c.Adapters.Badger = badger

	if c.CH != nil {
		mirror, err := provideAuditMirror(c)
		if err != nil {
			return err
		}
		c.Adapters.AuditMirror = mirror
	}

	collector := metrics.NewCustomCollector(c.Log, c.PG.DB(), c.clickhouseConn())
	if c.Adapters.AuditMirror != nil {
		collector.WithMirrorBacklog(c.Adapters.AuditMirror.Backlog)
	}
	metrics.RegisterCustomCollector(collector)

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
		c.Adapters.Events = events.NewPublisher(c.Adapters.KafkaProducer, c.Config.App.Name, c.Log)
	} else {
		c.Adapters.Events = events.NewNoopPublisher()
	}

	return nil
}

// ========================================
// Phase 5: Services
// ========================================

func (c *Container) initServices() error {
	var err error

	c.Services.Registry = model.NewRegistry(c.Repos.Models, c.Adapters.Artifacts)

	var mirror audit.Mirror
	if c.Adapters.AuditMirror != nil {
		mirror = c.Adapters.AuditMirror
	}
	c.Services.Trail = audit.NewTrail(c.Repos.Audit, c.Repos.Feedback, mirror)

	c.Services.Trainer, err = provideTrainer(c.Config.Model)
	if err != nil {
		return err
	}

	c.Services.Classifier, err = provideClassifier(c.Config.Fallback)
	if err != nil {
		return err
	}

	c.Services.ModelOps, err = modelops.NewService(modelops.Deps{
		Records:    c.Repos.Activities,
		Registry:   c.Services.Registry,
		Trainer:    c.Services.Trainer,
		Classifier: c.Services.Classifier,
		Trail:      c.Services.Trail,
		Projection: c.Repos.Classification,
		Events:     c.Adapters.Events,
		Tracker:    c.ErrorTracker,
	}, modelops.Config{
		AutoActivate:    c.Config.Model.AutoActivate,
		TrainingTimeout: c.Config.Model.TrainingTimeout,
	})
	if err != nil {
		return err
	}

	// A missing schema surfaces here; migrate has to run first on a fresh database.
	if _, err := c.Services.ModelOps.Refresh(c.Context); err != nil {
		c.Log.Warnw("Could not load active model, classification will use the fallback rule", "error", err)
	}

	return nil
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, version string, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Debug("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking, cfg.App.Name+"@"+version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("Kafka brokers not configured, using default localhost:9092")
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Async:   false,
	})
	log.Debugw("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	return producer
}

// provideArtifactStore returns the configured store. The badger handle is
// returned separately because only it needs closing.
func provideArtifactStore(cfg *config.Config, rdb *redisclient.Client, log *logger.Logger) (model.ArtifactStore, *badgerstore.Store, error) {
	switch cfg.Artifacts.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.Wrap(errors.ErrInvalidInput, "redis artifact backend needs a redis connection")
		}
		log.Debug("✓ Artifact store: redis")
		return redisstore.New(rdb), nil, nil
	default:
		store, err := badgerstore.Open(badgerstore.Config{
			Path:       cfg.Artifacts.Path,
			SyncWrites: true,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Debugw("✓ Artifact store: badger", "path", cfg.Artifacts.Path)
		return store, store, nil
	}
}

func provideAuditMirror(c *Container) (*chrepo.AuditMirror, error) {
	mirror := chrepo.NewAuditMirror(c.CH.Conn())
	if err := mirror.EnsureSchema(c.Context); err != nil {
		return nil, err
	}
	mirror.Start(c.Context)
	c.Log.Debug("✓ ClickHouse audit mirror started")
	return mirror, nil
}

func provideTrainer(cfg config.ModelConfig) (*cluster.Trainer, error) {
	policy, err := cluster.ResolvePolicy(cfg.ClusterCount, cfg.Labels, cfg.LabelPolicyFile)
	if err != nil {
		return nil, err
	}

	return cluster.NewTrainer(cluster.Config{
		K:             cfg.ClusterCount,
		Seed:          cfg.Seed,
		Restarts:      cfg.Restarts,
		MaxIterations: cfg.MaxIterations,
		MinSamples:    cfg.MinSamples,
		Columns:       activity.DefaultColumns,
		Policy:        policy,
	})
}

func provideClassifier(cfg config.FallbackConfig) (*classifier.Classifier, error) {
	cutoff, err := cfg.CutoffTime()
	if err != nil {
		return nil, err
	}

	return classifier.New(classifier.FallbackRule{
		Cutoff:       cutoff,
		LabelBefore:  classification.Label(cfg.LabelBefore),
		LabelAfter:   classification.Label(cfg.LabelAfter),
		DefaultLabel: classification.Label(cfg.DefaultLabel),
		Confidence:   cfg.Confidence,
	})
}
