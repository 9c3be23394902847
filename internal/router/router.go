package router

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"nido/internal/adapters/identity/local"
	"nido/internal/adapters/presence/redispresence"
	"nido/internal/adapters/store/memory"
	pg "nido/internal/adapters/store/postgres"
	"nido/internal/domain/activities"
	"nido/internal/domain/records"
	"nido/internal/domain/session"
	"nido/internal/middleware"
	"nido/internal/platform/logger"
	"nido/internal/ports/auth"
	"nido/internal/ports/store"
)

type Options struct {
	// Verifier nil habilita el modo dev (header X-Debug-User-ID).
	Verifier auth.TokenVerifier

	// Store nil intenta Postgres por DB_DSN y cae a memoria.
	Store store.Store

	// Backend nil crea uno local sobre el store.
	Backend *local.Backend

	// Presence opcional; sin tracker los endpoints responden 503.
	Presence *redispresence.Tracker

	// Session nil construye y arranca un controller sobre backend y store.
	Session *session.Controller

	Log logger.Logger
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	st := opts.Store
	if st == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				st = opened
			} else {
				log.Warn("postgres unavailable, falling back to memory store", map[string]any{"error": err.Error()})
			}
		}
	}
	if st == nil {
		st = memory.New()
	}

	backend := opts.Backend
	if backend == nil {
		backend = local.New(st, local.Options{TokenSecret: os.Getenv("AUTH_TOKEN_SECRET")})
	}

	sess := opts.Session
	if sess == nil {
		sess = session.NewController(backend, st, log)
		sess.Start()
	}

	r.Use(middleware.AuthContext(opts.Verifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	recSvc := records.NewService(st)
	actSvc := activities.NewService(st, recSvc)

	registerAuthRoutes(r, backend, sess, log)
	records.RegisterRoutes(r, recSvc)
	activities.RegisterRoutes(r, actSvc, recSvc)
	registerPresenceRoutes(r, opts.Presence, st)
	registerAdminRoutes(r, st, recSvc, actSvc, backend, log)
	registerWatchRoutes(r, st, log)

	return r
}
