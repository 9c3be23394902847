package main

import (
	"net/http"
	"os"
	"time"

	"nido/internal/adapters/identity/local"
	"nido/internal/adapters/identity/remote"
	"nido/internal/adapters/presence/redispresence"
	"nido/internal/adapters/store/memory"
	pg "nido/internal/adapters/store/postgres"
	"nido/internal/platform/logger"
	"nido/internal/ports/auth"
	"nido/internal/domain/session"
	"nido/internal/ports/store"
	"nido/internal/router"
)

// Config por env:
// - PORT: puerto HTTP (default 8080)
// - DB_DSN: Postgres; vacío usa el store en memoria
// - REDIS_ADDR (+ REDIS_PASSWORD, opcional): presencia; vacío la deshabilita
// - AUTH_TOKEN_SECRET: firma de bearer tokens; vacío emite tokens efímeros
// - AUTH_REMOTE_URL (+ AUTH_REMOTE_API_KEY): verifica tokens contra un IAM
//   externo en vez del backend local
// - AUTH_DEV_MODE=1: sin verificación de token, identidad por X-Debug-User-ID
// - LOG_LEVEL, LOG_FORMAT, APP_NAME: ver platform/logger
func main() {
	log := logger.NewFromEnv()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	var st store.Store
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		opened, err := pg.Open(dsn)
		if err != nil {
			log.Error("postgres connection failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer opened.Close()
		st = opened
		log.Info("using postgres store", nil)
	} else {
		st = memory.New()
		log.Info("using in-memory store", nil)
	}

	backend := local.New(st, local.Options{TokenSecret: os.Getenv("AUTH_TOKEN_SECRET")})

	// el dueño del estado de sesión del proceso se construye una sola vez,
	// acá, y vive tanto como el server
	sess := session.NewController(backend, st, log)
	sess.Start()
	defer sess.Close()

	var verifier auth.TokenVerifier = backend
	if remoteURL := os.Getenv("AUTH_REMOTE_URL"); remoteURL != "" {
		rv, err := remote.NewVerifier(remote.Config{
			BaseURL: remoteURL,
			APIKey:  os.Getenv("AUTH_REMOTE_API_KEY"),
		})
		if err != nil {
			log.Error("remote verifier misconfigured", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		verifier = rv
		log.Info("using remote token verifier", map[string]any{"url": remoteURL})
	}
	if os.Getenv("AUTH_DEV_MODE") == "1" {
		verifier = nil
		log.Warn("auth dev mode enabled, requests trust X-Debug-User-ID", nil)
	}

	var tracker *redispresence.Tracker
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		tr, err := redispresence.New(redispresence.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		}, st)
		if err != nil {
			log.Error("redis connection failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer tr.Close()
		tracker = tr
		log.Info("presence tracking enabled", map[string]any{"addr": redisAddr})
	}

	r := router.NewRouter(router.Options{
		Verifier: verifier,
		Store:    st,
		Backend:  backend,
		Presence: tracker,
		Session:  sess,
		Log:      log,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("starting server", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
