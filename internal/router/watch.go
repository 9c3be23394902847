package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"nido/internal/middleware"
	"nido/internal/platform/logger"
	"nido/internal/ports/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// el token ya autenticó el request; no filtramos por origen
	CheckOrigin: func(*http.Request) bool { return true },
}

type watchEvent struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// registerWatchRoutes expone el feed de cambios del store por websocket:
// GET /watch?path=/users/u1 entrega el valor actual y cada cambio posterior
// del path o sus descendientes, en orden.
func registerWatchRoutes(r chi.Router, st store.Store, log logger.Logger) {
	r.Get("/watch", watchHandler(st, log))
}

func watchHandler(st store.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" {
			http.Error(w, "path query parameter required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return // Upgrade ya respondió
		}
		defer conn.Close()

		// buffer generoso; si el cliente no consume, la entrega más vieja
		// se descarta y la siguiente trae el estado completo igual
		updates := make(chan any, 64)
		unsub := st.Listen(path, func(v any) {
			select {
			case updates <- v:
			default:
				select {
				case <-updates:
				default:
				}
				updates <- v
			}
		})
		defer unsub()

		// el read loop solo detecta el cierre del lado del cliente
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case v := <-updates:
				if err := conn.WriteJSON(watchEvent{Path: path, Value: v}); err != nil {
					log.Debug("watch client write failed", map[string]any{"path": path, "error": err.Error()})
					return
				}
			}
		}
	}
}
