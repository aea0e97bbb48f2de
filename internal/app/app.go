// Package app assembles the store, service and optional blob pipeline from
// configuration. Both the long-running server and the Lambda entrypoint use it.
package app

import (
	"context"
	"fmt"

	"memorymap/internal/auth"
	"memorymap/internal/blob"
	"memorymap/internal/config"
	"memorymap/internal/db"
	httpx "memorymap/internal/http"
	"memorymap/internal/jobs"
	"memorymap/internal/memory"
	"memorymap/internal/realtime"
	"memorymap/internal/store"
	"memorymap/internal/store/firestore"
	"memorymap/internal/store/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type App struct {
	Config config.Config
	Store  memory.Store
	Svc    *memory.Service
	JWT    *auth.JWT
	Blobs  blob.Store   // nil when S3_BUCKET is unset
	Worker *jobs.Worker // nil unless postgres and blobs are both configured
	Log    *zap.Logger
}

func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		JWT:    auth.NewJWT(cfg.SessionSecret, cfg.SessionTTL),
		Log:    log,
	}

	if cfg.S3Bucket != "" {
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		a.Blobs = s3
	} else {
		log.Warn("S3_BUCKET not set, photo uploads disabled")
	}

	var cleanup memory.CleanupQueue
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		gdb, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrateAndIndexes(gdb); err != nil {
			return nil, err
		}
		a.Store = &postgres.Store{DB: gdb, DSN: cfg.DatabaseURL, AppID: cfg.AppID, Log: log}

		if a.Blobs != nil {
			repo := &jobs.Repo{DB: gdb, AppID: cfg.AppID}
			cleanup = repo
			a.Worker = &jobs.Worker{
				ID:    "worker-" + uuid.NewString()[:8],
				Repo:  repo,
				Blobs: a.Blobs,
				Log:   log.Named("jobs"),
			}
		}

	case config.BackendFirestore:
		st, err := firestore.New(ctx, firestore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			CredentialsJSON: cfg.FirebaseServiceAccountKey,
			AppID:           cfg.AppID,
		}, log.Named("firestore"))
		if err != nil {
			return nil, err
		}
		a.Store = st

	default:
		log.Warn("using in-memory store, data is lost on restart")
		a.Store = store.NewInMemory()
	}

	svc := &memory.Service{Store: a.Store, Log: log}
	if cfg.PostAuthorizationKey != "" {
		svc.Gate = auth.NewKeyGate(cfg.PostAuthorizationKey)
	} else {
		log.Error("POST_AUTHORIZATION_KEY not set, /authorize will answer 500")
	}
	if cleanup != nil {
		svc.Cleanup = cleanup
	}
	a.Svc = svc
	return a, nil
}

// Deps wires the router. hub may be nil.
func (a *App) Deps(hub *realtime.Hub) httpx.Deps {
	d := httpx.Deps{
		Config: a.Config,
		Svc:    a.Svc,
		JWT:    a.JWT,
		Hub:    hub,
		Log:    a.Log,
	}
	if a.Blobs != nil {
		d.Blobs = a.Blobs
	}
	return d
}

func (a *App) Close() error {
	return a.Store.Close()
}
