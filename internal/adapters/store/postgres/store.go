// Package postgres implementa el Store realtime sobre Postgres. El árbol se
// aplana a hojas: una fila por valor escalar, con el path completo como clave.
// La semántica (set nil borra, update con claves multi-path, listen con
// entrega inicial) replica la del adapter en memoria, que es la referencia.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nido/internal/errs"
	"nido/internal/ports/store"
)

type listener struct {
	id   int
	segs []string
	cb   func(any)
}

type Store struct {
	db *sql.DB

	// query es s.queryAt salvo en tests, que inyectan filas en memoria.
	query func(ctx context.Context, segs []string) ([]row, error)

	mu        sync.Mutex
	nextID    int
	listeners map[int]*listener
}

var _ store.Store = (*Store)(nil)

// Open abre un pool pgx via database/sql, verifica conectividad y crea el
// esquema si hace falta.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, listeners: map[int]*listener{}}
	s.query = s.queryAt
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			path  TEXT PRIMARY KEY,
			value JSONB NOT NULL
		)
	`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, path string) (any, error) {
	return s.get(ctx, split(path))
}

func (s *Store) get(ctx context.Context, segs []string) (any, error) {
	rows, err := s.query(ctx, segs)
	if err != nil {
		return nil, mapErr(err)
	}
	return assemble(segs, rows), nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	segs := split(path)

	v, err := normalize(value)
	if err != nil {
		return errs.NewCoded("invalid-data", "value is not a JSON tree: "+err.Error())
	}
	if len(segs) == 0 {
		if _, ok := v.(map[string]any); v != nil && !ok {
			return errs.NewCoded("invalid-data", "root value must be an object or nil")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	if err := setTx(ctx, tx, segs, v); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}

	s.notify(ctx, [][]string{segs})
	return nil
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	base := split(path)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}

	touched := make([][]string, 0, len(partial))
	for k, raw := range partial {
		v, err := normalize(raw)
		if err != nil {
			_ = tx.Rollback()
			return errs.NewCoded("invalid-data", "value for "+k+" is not a JSON tree: "+err.Error())
		}
		segs := append(append([]string{}, base...), split(k)...)
		if err := setTx(ctx, tx, segs, v); err != nil {
			_ = tx.Rollback()
			return mapErr(err)
		}
		touched = append(touched, segs)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}

	s.notify(ctx, touched)
	return nil
}

// Listen entrega el valor actual al registrarse y después de cada escritura
// hecha a través de esta instancia. Cambios hechos por otros procesos no se
// propagan; para eso haría falta LISTEN/NOTIFY del lado del servidor.
//
// El alta y la foto inicial ocurren bajo el mismo lock que notify: primero se
// registra el listener y recién después se lee el snapshot, así una escritura
// concurrente llega por la foto o por notify, pero nunca se pierde. Igual que
// en el adapter en memoria, los callbacks corren bajo el lock del store y no
// deben llamar de vuelta al store.
func (s *Store) Listen(path string, cb func(any)) func() {
	segs := split(path)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = &listener{id: id, segs: segs, cb: cb}

	snapshot, err := s.get(context.Background(), segs)
	if err != nil {
		snapshot = nil
	}
	cb(snapshot)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(ctx context.Context, written [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := make([]*listener, 0)
	for _, l := range s.listeners {
		for _, w := range written {
			if isPrefix(l.segs, w) || isPrefix(w, l.segs) {
				affected = append(affected, l)
				break
			}
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i].id < affected[j].id })

	for _, l := range affected {
		v, err := s.get(ctx, l.segs)
		if err != nil {
			continue
		}
		l.cb(v)
	}
}

type row struct {
	path  string
	value any
}

func (s *Store) queryAt(ctx context.Context, segs []string) ([]row, error) {
	key := key(segs)

	var rows *sql.Rows
	var err error
	if key == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT path, value FROM nodes`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path, value FROM nodes
			WHERE path = $1 OR path LIKE $1 || '/%'
		`, key)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]row, 0)
	for rows.Next() {
		var r row
		var raw []byte
		if err := rows.Scan(&r.path, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &r.value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// assemble reconstruye el subárbol en path a partir de las filas hoja.
func assemble(segs []string, rows []row) any {
	if len(rows) == 0 {
		return nil
	}
	prefix := key(segs)

	// hoja exacta
	if len(rows) == 1 && rows[0].path == prefix {
		return rows[0].value
	}

	root := map[string]any{}
	for _, r := range rows {
		rel := strings.TrimPrefix(strings.TrimPrefix(r.path, prefix), "/")
		parts := strings.Split(rel, "/")

		parent := root
		for _, seg := range parts[:len(parts)-1] {
			child, ok := parent[seg].(map[string]any)
			if !ok {
				child = map[string]any{}
				parent[seg] = child
			}
			parent = child
		}
		parent[parts[len(parts)-1]] = r.value
	}
	return root
}

func setTx(ctx context.Context, tx *sql.Tx, segs []string, v any) error {
	k := key(segs)

	// borra el subtree y cualquier hoja escalar intermedia en el camino
	if k == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM nodes WHERE path = $1 OR path LIKE $1 || '/%'
		`, k); err != nil {
			return err
		}
		for i := 1; i < len(segs); i++ {
			if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE path = $1`, key(segs[:i])); err != nil {
				return err
			}
		}
	}

	if v == nil {
		return nil
	}

	leaves := map[string]any{}
	flatten(k, v, leaves)
	for path, leaf := range leaves {
		raw, err := json.Marshal(leaf)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (path, value) VALUES ($1, $2)
			ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value
		`, path, raw); err != nil {
			return err
		}
	}
	return nil
}

// flatten baja recursivamente por los mapas; escalares y arrays quedan como
// hoja. Un mapa vacío deja su propia fila con `{}` como valor centinela: si no
// dejara fila, un documento con `childrenIds: {}` perdería la clave al leerse
// de vuelta y ya no validaría, cosa que en el adapter en memoria no pasa.
func flatten(prefix string, v any, out map[string]any) {
	if m, ok := v.(map[string]any); ok && len(m) > 0 {
		for k, child := range m {
			flatten(prefix+"/"+k, child, out)
		}
		return
	}
	out[prefix] = v
}

func key(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

func split(path string) []string {
	out := make([]string, 0, 4)
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func isPrefix(prefix, segs []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segs[i] {
			return false
		}
	}
	return true
}

func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errs.NewCoded("timeout", err.Error())
	case errors.Is(err, context.Canceled):
		return errs.NewCoded("disconnected", err.Error())
	default:
		return errs.NewCoded("unavailable", err.Error())
	}
}
