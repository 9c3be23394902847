// Package session es el dueño del estado de autenticación del proceso:
// reconcilia los eventos del backend de identidad con el documento de perfil
// derivado del store y expone una vista consistente de "quién está logueado y
// qué puede hacer". Estado explícito con ciclo de vida propio, nada de
// globals ambientes.
package session

import (
	"context"
	"sort"
	"sync"

	"nido/internal/domain/profile"
	"nido/internal/errs"
	"nido/internal/platform/logger"
	"nido/internal/ports/identity"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

type Status string

const (
	StatusIdle            Status = "idle"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

// State es un snapshot inmutable-por-versión: los consumidores nunca lo
// mutan, solo el reducer interno del controller produce versiones nuevas.
type State struct {
	Status      Status
	User        *identity.User
	Profile     profile.Profile
	Permissions profile.Permissions
	Err         *errs.Normalized
	IsLoading   bool
}

type Controller struct {
	mu      sync.Mutex
	backend identity.Backend
	store   store.Store
	log     logger.Logger

	state       State
	nextID      int
	subs        map[int]func(State)
	stopAuth    func()
	stopProfile func()

	// uid de la sesión vigente; las entregas de perfil se filtran contra
	// este valor para que una entrega tardía de una sesión anterior no
	// resucite permisos después del logout
	currentUID string
}

func NewController(backend identity.Backend, st store.Store, log logger.Logger) *Controller {
	return &Controller{
		backend: backend,
		store:   st,
		log:     log,
		state:   State{Status: StatusIdle, IsLoading: true},
		subs:    map[int]func(State){},
	}
}

// Start engancha el observador de sesión del backend. El backend entrega el
// estado actual de forma sincrónica al registrarse, así que al volver de
// Start el estado ya refleja la sesión vigente.
func (c *Controller) Start() {
	c.mu.Lock()
	c.state.Status = StatusLoading
	c.state.IsLoading = true
	c.state.Err = nil
	c.mu.Unlock()
	c.publish()

	c.stopAuth = c.backend.OnAuthStateChanged(c.onAuthEvent)
}

// Close desengancha ambos listeners (sesión y perfil) y deja el estado en la
// forma inicial pero con status unauthenticated.
func (c *Controller) Close() {
	c.mu.Lock()
	stopAuth := c.stopAuth
	stopProfile := c.stopProfile
	c.stopAuth = nil
	c.stopProfile = nil
	c.currentUID = ""
	c.state = State{Status: StatusUnauthenticated}
	c.mu.Unlock()

	if stopProfile != nil {
		stopProfile()
	}
	if stopAuth != nil {
		stopAuth()
	}
	c.publish()
}

// Snapshot devuelve la versión vigente del estado.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registra un consumidor; lo invoca inmediatamente con el snapshot
// actual y después en cada transición. El cancel devuelto es idempotente.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[id] = fn
	snap := c.state
	c.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// SignIn delega en el backend. Una falla se devuelve tipada al caller y no
// toca el estado global: el estado solo se mueve por eventos de sesión.
func (c *Controller) SignIn(ctx context.Context, email, password string) *errs.Normalized {
	return c.backend.SignIn(ctx, email, password)
}

func (c *Controller) SignUp(ctx context.Context, email, password string, p profile.Profile) *errs.Normalized {
	return c.backend.SignUp(ctx, email, password, p)
}

func (c *Controller) SignOut(ctx context.Context) *errs.Normalized {
	return c.backend.SignOut(ctx)
}

func (c *Controller) onAuthEvent(u *identity.User) {
	if u == nil {
		c.mu.Lock()
		stop := c.stopProfile
		c.stopProfile = nil
		c.currentUID = ""
		c.state = State{Status: StatusUnauthenticated}
		c.mu.Unlock()

		// el filtro por uid ya bloquea entregas tardías, pero igual
		// soltamos el listener viejo acá mismo
		if stop != nil {
			stop()
		}
		c.publish()
		return
	}

	c.mu.Lock()
	usr := *u
	c.state.Status = StatusAuthenticated
	c.state.User = &usr
	c.state.Err = nil
	c.state.IsLoading = true

	sameUID := c.currentUID == u.UID
	var stop func()
	if !sameUID {
		stop = c.stopProfile
		c.stopProfile = nil
		c.currentUID = u.UID
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.publish()

	if sameUID {
		return
	}

	// la suscripción de perfil se establece exactamente una vez por uid;
	// el callback captura el uid para filtrar entregas de sesiones viejas
	uid := u.UID
	unsub := c.store.Listen(schema.UserPath(uid), func(v any) {
		c.onProfileValue(uid, v)
	})

	c.mu.Lock()
	if c.currentUID != uid {
		// la sesión cambió mientras nos suscribíamos
		c.mu.Unlock()
		unsub()
		return
	}
	c.stopProfile = unsub
	c.mu.Unlock()
}

func (c *Controller) onProfileValue(uid string, v any) {
	c.mu.Lock()

	if uid != c.currentUID {
		// entrega tardía de una sesión que ya no existe
		c.mu.Unlock()
		return
	}

	switch {
	case v == nil:
		// identidad autenticada sin documento: estado degradado pero usable,
		// el usuario NO vuelve a logged-out
		c.state.Profile = nil
		c.state.Permissions = profile.Permissions{}
		c.state.Err = errs.Normalize(
			errs.NewCoded("not-found", "user authenticated but no profile found in store"),
			store.ErrorCodes,
		)
		c.state.IsLoading = false
		c.warn("profile missing for authenticated user", map[string]any{"uid": uid})

	default:
		p, err := profile.Validate(v)
		if err != nil {
			c.state.Profile = nil
			c.state.Permissions = profile.Permissions{}
			c.state.Err = errs.Normalize(
				errs.NewCoded("invalid-data", err.Error()),
				store.ErrorCodes,
			)
			c.state.IsLoading = false
			c.warn("profile failed validation", map[string]any{"uid": uid, "error": err.Error()})
		} else {
			c.state.Profile = p
			c.state.Permissions = p.Permissions()
			c.state.Err = nil
			c.state.IsLoading = false
		}
	}

	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.state
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) warn(msg string, fields map[string]any) {
	if c.log != nil {
		c.log.Warn(msg, fields)
	}
}
