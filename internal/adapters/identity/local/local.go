// Package local implementa el Backend de identidad embebido en el proceso:
// cuentas con password argon2id, sesión actual observable y emisión de bearer
// tokens para la superficie HTTP. Es el backend de dev/staging; uno remoto
// implementa el mismo port y se enchufa en main sin tocar el resto.
package local

import (
	"context"
	"net/mail"
	"sort"
	"sync"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"nido/internal/domain/profile"
	"nido/internal/errs"
	"nido/internal/ports/identity"
	"nido/internal/ports/store"
	"nido/internal/schema"
)

const minPasswordLen = 6

type account struct {
	uid          string
	email        string
	passwordHash string
}

type Backend struct {
	mu        sync.Mutex
	store     store.Store
	accounts  map[string]*account // por email
	current   *identity.User
	nextID    int
	observers map[int]func(*identity.User)

	tokens *tokenIssuer
}

var _ identity.Backend = (*Backend)(nil)

type Options struct {
	// Secret para firmar los bearer tokens de la superficie HTTP.
	TokenSecret string
}

func New(st store.Store, opts Options) *Backend {
	return &Backend{
		store:     st,
		accounts:  map[string]*account{},
		observers: map[int]func(*identity.User){},
		tokens:    newTokenIssuer(opts.TokenSecret),
	}
}

func (b *Backend) SignIn(ctx context.Context, email, password string) *errs.Normalized {
	if !validEmail(email) {
		return fail(identity.SignInErrors, "invalid-email", "malformed email address")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.accounts[email]
	if !ok {
		return fail(identity.SignInErrors, "user-not-found", "no account for this email")
	}

	match, err := argon2id.ComparePasswordAndHash(password, acc.passwordHash)
	if err != nil {
		return fail(identity.SignInErrors, "internal-error", err.Error())
	}
	if !match {
		return fail(identity.SignInErrors, "wrong-password", "password mismatch")
	}

	b.current = &identity.User{UID: acc.uid, Email: acc.email}
	b.notifyLocked()
	return nil
}

// SignUp crea la cuenta y DESPUÉS escribe el perfil en /users/{uid}. Si el
// perfil no valida o la escritura falla, borra la cuenta recién creada
// best-effort y reporta la falla original. No es atómico: puede quedar una
// cuenta huérfana si el borrado también falla (gap conocido, ver DESIGN.md).
func (b *Backend) SignUp(ctx context.Context, email, password string, p profile.Profile) *errs.Normalized {
	if !validEmail(email) {
		return fail(identity.SignUpErrors, "invalid-email", "malformed email address")
	}
	if len(password) < minPasswordLen {
		return fail(identity.SignUpErrors, "weak-password", "password below minimum length")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.accounts[email]; exists {
		return fail(identity.SignUpErrors, "email-already-in-use", "account already registered")
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return fail(identity.SignUpErrors, "internal-error", err.Error())
	}

	uid := uuid.NewString()
	b.accounts[email] = &account{uid: uid, email: email, passwordHash: hash}

	if nerr := b.writeProfileLocked(ctx, uid, p); nerr != nil {
		// rollback best-effort de la cuenta huérfana; la falla del borrado
		// se traga a propósito
		delete(b.accounts, email)
		return nerr
	}

	// el alta deja la sesión iniciada, igual que el backend real
	b.current = &identity.User{UID: uid, Email: email}
	b.notifyLocked()
	return nil
}

func (b *Backend) writeProfileLocked(ctx context.Context, uid string, p profile.Profile) *errs.Normalized {
	stamped := profile.WithID(p, uid)

	doc, err := profile.Encode(stamped)
	if err != nil {
		return errs.Normalize(err, identity.SignUpErrors)
	}
	if _, err := profile.Validate(doc); err != nil {
		return errs.Normalize(err, identity.SignUpErrors)
	}
	if err := b.store.Set(ctx, schema.UserPath(uid), doc); err != nil {
		return errs.Normalize(err, identity.SignUpErrors)
	}
	return nil
}

func (b *Backend) SignOut(ctx context.Context) *errs.Normalized {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = nil
	b.notifyLocked()
	return nil
}

// OnAuthStateChanged invoca cb sincrónicamente con la sesión actual al
// registrarse y en cada cambio posterior. El unsubscribe es idempotente.
func (b *Backend) OnAuthStateChanged(cb func(*identity.User)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.observers[id] = cb
	cb(b.current)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
		})
	}
}

// HasAccount existe para tests y para el panel de staging.
func (b *Backend) HasAccount(email string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.accounts[email]
	return ok
}

// CurrentUser devuelve la sesión actual (o nil).
func (b *Backend) CurrentUser() *identity.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return nil
	}
	u := *b.current
	return &u
}

// UIDByEmail resuelve el uid de una cuenta; lo usa el handler de sign-in para
// emitir el token sin exponer el mapa de cuentas.
func (b *Backend) UIDByEmail(email string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[email]
	if !ok {
		return "", false
	}
	return acc.uid, true
}

func (b *Backend) notifyLocked() {
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	// orden de registro estable
	sort.Ints(ids)
	for _, id := range ids {
		b.observers[id](b.current)
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func fail(known []string, code, msg string) *errs.Normalized {
	return errs.Normalize(errs.NewCoded(code, msg), known)
}
