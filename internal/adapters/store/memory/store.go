// Package memory implementa el Store realtime en memoria. Es el backend por
// defecto para dev y tests, y la referencia de semántica para los demás
// adapters (el de postgres replica este comportamiento).
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"nido/internal/errs"
	"nido/internal/ports/store"
)

type listener struct {
	id   int
	segs []string
	cb   func(any)
}

type Store struct {
	mu        sync.Mutex
	root      map[string]any
	nextID    int
	listeners map[int]*listener
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		root:      map[string]any{},
		listeners: map[int]*listener{},
	}
}

func (s *Store) Get(ctx context.Context, path string) (any, error) {
	segs := split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(valueAt(s.root, segs)), nil
}

// Set escribe el subárbol completo en path; value nil borra el subtree.
// El valor se normaliza vía JSON: así dos escrituras con el mismo contenido
// quedan byte-idénticas sin importar los tipos Go de origen.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	segs := split(path)

	v, err := normalize(value)
	if err != nil {
		return errs.NewCoded("invalid-data", "value is not a JSON tree: "+err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setLocked(segs, v); err != nil {
		return err
	}
	s.notifyLocked(segs)
	return nil
}

// Update aplica un merge superficial sobre path. Las claves pueden ser paths
// relativos con "/" (update multi-ubicación), igual que en el backend real.
func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	base := split(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make([][]string, 0, len(partial))
	for k, raw := range partial {
		v, err := normalize(raw)
		if err != nil {
			return errs.NewCoded("invalid-data", "value for "+k+" is not a JSON tree: "+err.Error())
		}
		segs := append(append([]string{}, base...), split(k)...)
		if err := s.setLocked(segs, v); err != nil {
			return err
		}
		touched = append(touched, segs)
	}

	for _, segs := range touched {
		s.notifyLocked(segs)
	}
	return nil
}

// Listen entrega el valor actual de forma inmediata y después cada cambio del
// path o sus descendientes. Los callbacks se despachan bajo el lock del store
// para preservar el orden por suscripción; no deben llamar de vuelta al store.
func (s *Store) Listen(path string, cb func(any)) func() {
	segs := split(path)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = &listener{id: id, segs: segs, cb: cb}
	snapshot := clone(valueAt(s.root, segs))
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

func (s *Store) setLocked(segs []string, v any) error {
	// escritura sobre la raíz
	if len(segs) == 0 {
		switch t := v.(type) {
		case nil:
			s.root = map[string]any{}
		case map[string]any:
			s.root = t
		default:
			return errs.NewCoded("invalid-data", "root value must be an object or nil")
		}
		return nil
	}

	if v == nil {
		deleteAt(s.root, segs)
		return nil
	}

	parent := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			// pisa cualquier valor escalar intermedio, como hace el backend real
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
	}
	parent[segs[len(segs)-1]] = v
	return nil
}

func (s *Store) notifyLocked(written []string) {
	affected := make([]*listener, 0)
	for _, l := range s.listeners {
		if isPrefix(l.segs, written) || isPrefix(written, l.segs) {
			affected = append(affected, l)
		}
	}
	// orden de registro estable
	sort.Slice(affected, func(i, j int) bool { return affected[i].id < affected[j].id })

	for _, l := range affected {
		l.cb(clone(valueAt(s.root, l.segs)))
	}
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

func valueAt(root map[string]any, segs []string) any {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// deleteAt borra el subtree y poda los mapas padres que quedan vacíos.
func deleteAt(root map[string]any, segs []string) {
	parents := make([]map[string]any, 0, len(segs))
	parent := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			return // nada que borrar
		}
		parents = append(parents, parent)
		parent = child
	}

	delete(parent, segs[len(segs)-1])

	for i := len(parents) - 1; i >= 0; i-- {
		if len(parent) != 0 {
			break
		}
		delete(parents[i], segs[i])
		parent = parents[i]
	}
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

func clone(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	default:
		return t
	}
}
