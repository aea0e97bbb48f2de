package http

import (
	"net/http"
	"time"

	"memorymap/internal/auth"
	"memorymap/internal/blob"
	"memorymap/internal/config"
	"memorymap/internal/http/handler"
	mw "memorymap/internal/http/middleware"
	"memorymap/internal/memory"
	"memorymap/internal/realtime"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Config config.Config
	Svc    *memory.Service
	JWT    *auth.JWT
	Blobs  blob.Store    // optional
	Hub    *realtime.Hub // optional; nil drops /subscribe
	Log    *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.Logger(log))

	if len(d.Config.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(d.Config.CORSAllowedOrigins, d.Config.CORSAllowCredentials))
	}

	r.MethodNotAllowed(handler.MethodNotAllowed)
	r.NotFound(handler.NotFound)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	sh := &handler.SessionHandler{JWT: d.JWT, Log: log}
	r.Post("/session", sh.Create)

	limit := d.Config.AuthorizeRateLimit
	if limit <= 0 {
		limit = 10
	}
	ah := &handler.AuthorizeHandler{Svc: d.Svc, Log: log}
	r.With(
		httprate.Limit(limit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"Too many authorization attempts. Try again later."}`))
			}),
		),
		auth.OptionalSession(d.JWT),
	).Post("/authorize", ah.Authorize)

	mh := &handler.MemoryHandler{Svc: d.Svc, Log: log}
	uh := &handler.UploadHandler{
		Svc:      d.Svc,
		Blobs:    d.Blobs,
		AppID:    d.Config.AppID,
		MaxBytes: d.Config.UploadMaxBytes,
		Log:      log,
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(d.JWT))

		r.Post("/save-memory", mh.Save)
		r.Post("/delete-memory", mh.Delete)
		r.Post("/upload", uh.Upload)
	})

	r.Get("/memories", mh.List)
	if d.Hub != nil {
		r.Get("/subscribe", d.Hub.ServeHTTP)
	}

	return r
}
