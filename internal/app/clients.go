package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/lock"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/metadata"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/objectstore"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/project"
	"github.com/PilotDataPlatform/dataset-sub000/internal/clients/queue"
	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
	"github.com/PilotDataPlatform/dataset-sub000/internal/tasks"
)

type Clients struct {
	Meta     metadata.Gateway
	Projects project.Gateway
	Queue    queue.Client
	Locks    lock.Client
	Store    objectstore.Store
	Events   events.Publisher
	Redis    redis.UniversalClient
	Tracker  *tasks.Tracker
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := objectstore.New(log, objectstore.ConfigFromEnv(log))
	if err != nil {
		return Clients{}, fmt.Errorf("init object store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	q := queue.New(log, queue.Config{BaseURL: cfg.QueueServiceURL})

	return Clients{
		Meta:     metadata.New(log, metadata.Config{BaseURL: cfg.MetadataServiceURL}),
		Projects: project.New(log, project.Config{BaseURL: cfg.ProjectServiceURL}),
		Queue:    q,
		Locks:    lock.NewClient(log, lock.Config{BaseURL: cfg.LockServiceURL}),
		Store:    store,
		Events:   events.NewPublisher(log, events.Config{BrokerURL: cfg.KafkaURL}),
		Redis:    rdb,
		Tracker:  tasks.NewTracker(log, rdb, q),
	}, nil
}
