package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"bronze-harvest/internal/catalog"
	"bronze-harvest/internal/config"
	"bronze-harvest/internal/db"
	"bronze-harvest/internal/event"
	"bronze-harvest/internal/harvest"
	"bronze-harvest/internal/opendata"
	"bronze-harvest/internal/recency"
	"bronze-harvest/internal/snapshot"

	"go.mongodb.org/mongo-driver/mongo"
)

// app holds the wired components and what must be released on exit.
type app struct {
	harvester *harvest.Service
	snapshots *mongo.Collection
	publisher *event.RabbitPublisher

	mongo  *mongo.Client
	logger *log.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{logger: logger}

	client, err := opendata.NewHTTPClient(cfg.BaseURL,
		opendata.WithUserAgent(cfg.UserAgent),
		opendata.WithTimeout(cfg.Timeout),
		opendata.WithRequestInterval(cfg.RequestInterval),
	)
	if err != nil {
		return nil, err
	}

	writer, err := newWriter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []harvest.Option{
		harvest.WithFilterBuilder(recency.NewBuilder(client,
			recency.WithFallbackSortField(cfg.FallbackSortField),
			recency.WithLogger(logger),
		)),
	}

	if cfg.MongoURI != "" {
		mongoClient, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		a.mongo = mongoClient

		database := mongoClient.Database(cfg.MongoDBName)
		repo, err := catalog.NewMongoRepository(database, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init catalog: %w", err)
		}
		a.snapshots = database.Collection(catalog.SnapshotsCollection)
		opts = append(opts, harvest.WithCatalog(repo))
		logger.Println("snapshot catalog initialised")
	}

	if cfg.RabbitURI != "" {
		publisher, err := event.NewRabbitPublisher(cfg.RabbitURI, cfg.RabbitExchange, cfg.RabbitRoutingKey, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init rabbit publisher: %w", err)
		}
		a.publisher = publisher
		opts = append(opts, harvest.WithNotifier(publisher))
	}

	a.harvester = harvest.NewService(client, writer, logger, opts...)
	return a, nil
}

func newWriter(ctx context.Context, cfg config.Config, logger *log.Logger) (snapshot.Writer, error) {
	if cfg.StorageBackend == config.BackendS3 {
		w, err := snapshot.NewObjectWriter(ctx, snapshot.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			UseSSL:          cfg.S3UseSSL,
			KeyPrefix:       cfg.S3KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		logger.Printf("writing snapshots to bucket %s", cfg.S3Bucket)
		return w, nil
	}

	logger.Printf("writing snapshots to %s", cfg.BronzeDir)
	return snapshot.NewFSWriter(cfg.BronzeDir, snapshot.WithFSLogger(logger)), nil
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Printf("mongo disconnect error: %v", err)
		}
	}
}
