// Package registry owns the canonical ordered list of configured remote
// execution servers. It guarantees name uniqueness across active
// entries, persists the list across process lifetimes, and keeps
// removed entries alive until teardown so outstanding handles never
// dangle.
package registry

import (
	"context"

	"go.uber.org/zap"

	"execd-go/internal/config"
	"execd-go/internal/events"
	"execd-go/internal/remote"
)

// PreferenceStore is the persistence substrate for the active list.
// The registry treats it as a single list-valued slot.
type PreferenceStore interface {
	ReadServerList() ([]*config.ServerConfig, error)
	WriteServerList([]*config.ServerConfig) error
}

// ConfigLoader extracts a server configuration from a file on disk.
type ConfigLoader interface {
	Load(path string) (*config.ServerConfig, error)
}

// Notifier receives the single user-visible message produced when the
// preference-store restore fails. Per-file scan failures are log-only.
type Notifier func(msg string)

// Options configure a registry.
type Options struct {
	Store      PreferenceStore
	ServersDir string
	Loader     ConfigLoader
	Factory    remote.Factory
	Default    func() *config.ServerConfig
	Notifier   Notifier
	Bus        *events.Bus
	Logger     *zap.Logger
}

// Registry is the single source of truth for configured servers.
//
// The registry is not safe for concurrent use: all mutation is expected
// to originate from a single logical owner. Entries are held in an
// arena keyed by handle; the active and retired sequences order handles,
// not entries, so removal never invalidates a live handle.
type Registry struct {
	entries map[Handle]*Entry
	active  []Handle
	retired []Handle
	nextID  Handle

	store      PreferenceStore
	serversDir string
	loader     ConfigLoader
	factory    remote.Factory
	newDefault func() *config.ServerConfig
	notify     Notifier
	bus        *events.Bus
	logger     *zap.Logger
}

// New constructs a registry and runs the load pipeline: preference-store
// restore, then the servers directory scan, then the built-in default,
// each tier attempted only when the previous one yielded nothing.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := opts.Factory
	if factory == nil {
		factory = remote.NewConnection
	}
	newDefault := opts.Default
	if newDefault == nil {
		newDefault = config.DefaultServerConfig
	}

	r := &Registry{
		entries:    make(map[Handle]*Entry),
		nextID:     1,
		store:      opts.Store,
		serversDir: opts.ServersDir,
		loader:     opts.Loader,
		factory:    factory,
		newDefault: newDefault,
		notify:     opts.Notifier,
		bus:        opts.Bus,
		logger:     logger,
	}

	r.load()
	return r
}

// ListNames returns the names of the active entries in display order.
func (r *Registry) ListNames() []string {
	names := make([]string, 0, len(r.active))
	for _, h := range r.active {
		names = append(names, r.entries[h].Name())
	}
	return names
}

// Add registers a server configuration. A name collision with an active
// entry is resolved, not rejected: a numeric suffix is appended, starting
// at _1 and rescanning current active names until the candidate is
// unique. The full active list is persisted before returning.
func (r *Registry) Add(cfg config.ServerConfig) Handle {
	// dedupName also enforces the non-empty name invariant.
	name := r.dedupName(cfg.Name)
	cfg.Name = name

	h := r.appendActive(cfg)
	r.save()

	r.logger.Info("Added server",
		zap.String("server", name),
		zap.String("connection", cfg.Connection))
	r.publish(events.Event{Type: events.ServerAdded, ServerName: name})

	return h
}

// Find returns the handle of the active entry with the given name.
func (r *Registry) Find(name string) (Handle, bool) {
	idx := r.indexOf(name)
	if idx < 0 {
		return 0, false
	}
	return r.active[idx], true
}

// Get returns the entry behind a handle. Retired entries remain
// readable here until teardown.
func (r *Registry) Get(h Handle) (*Entry, bool) {
	e, ok := r.entries[h]
	return e, ok
}

// IsActive reports whether the handle refers to an active entry.
func (r *Registry) IsActive(h Handle) bool {
	for _, a := range r.active {
		if a == h {
			return true
		}
	}
	return false
}

// Remove moves the named entry from the active list to the retired
// list. The entry is not destroyed: handles obtained earlier stay
// readable until teardown. The active list is persisted even when the
// name is not found.
func (r *Registry) Remove(name string) {
	idx := r.indexOf(name)
	if idx >= 0 {
		r.retire(idx)
	}
	r.save()
}

// RemoveHandle is like Remove but targets an entry by handle.
func (r *Registry) RemoveHandle(h Handle) {
	for idx, a := range r.active {
		if a == h {
			r.retire(idx)
			break
		}
	}
	r.save()
}

func (r *Registry) retire(idx int) {
	h := r.active[idx]
	name := r.entries[h].Name()

	r.active = append(r.active[:idx], r.active[idx+1:]...)
	r.retired = append(r.retired, h)

	r.logger.Info("Removed server", zap.String("server", name))
	r.publish(events.Event{Type: events.ServerRemoved, ServerName: name})
}

// MoveUp swaps the named entry with its predecessor. The first entry
// cannot move up; the list is persisted either way.
func (r *Registry) MoveUp(name string) {
	idx := r.indexOf(name)
	if idx > 0 {
		r.active[idx], r.active[idx-1] = r.active[idx-1], r.active[idx]
		r.publish(events.Event{Type: events.ServerOrderChanged, ServerName: name})
	}
	r.save()
}

// MoveDown swaps the named entry with its successor. The last entry
// cannot move down; the list is persisted either way.
func (r *Registry) MoveDown(name string) {
	idx := r.indexOf(name)
	if idx >= 0 && idx < len(r.active)-1 {
		r.active[idx], r.active[idx+1] = r.active[idx+1], r.active[idx]
		r.publish(events.Event{Type: events.ServerOrderChanged, ServerName: name})
	}
	r.save()
}

// CloseAllConnections closes every active entry's connection.
// Individual close failures are logged, never propagated.
func (r *Registry) CloseAllConnections() {
	for _, h := range r.active {
		e := r.entries[h]
		if err := e.conn.Close(); err != nil {
			r.logger.Warn("Failed to close connection",
				zap.String("server", e.Name()),
				zap.Error(err))
			continue
		}
		r.publish(events.Event{Type: events.ConnectionClosed, ServerName: e.Name()})
	}
}

// ConnectServers opens the connection of each requested server that is
// active. Names not found are silently skipped.
func (r *Registry) ConnectServers(ctx context.Context, names []string) {
	for _, name := range names {
		h, ok := r.Find(name)
		if !ok {
			r.logger.Debug("Skipping unknown server", zap.String("server", name))
			continue
		}
		e := r.entries[h]
		if err := e.conn.Open(ctx); err != nil {
			r.logger.Warn("Failed to open connection",
				zap.String("server", name),
				zap.Error(err))
			continue
		}
		r.publish(events.Event{Type: events.ConnectionOpened, ServerName: name})
	}
}

// Teardown destroys every entry in the active and retired lists exactly
// once. It is idempotent; a registry that is never torn down leaks
// rather than double-frees.
func (r *Registry) Teardown() {
	for _, e := range r.entries {
		if e.destroyed {
			continue
		}
		e.destroyed = true
		if err := e.conn.Close(); err != nil {
			r.logger.Warn("Failed to close connection during teardown",
				zap.String("server", e.Name()),
				zap.Error(err))
		}
	}

	r.entries = make(map[Handle]*Entry)
	r.active = nil
	r.retired = nil
}

// appendActive places a new entry in the arena and at the end of the
// active list. Callers are responsible for name uniqueness.
func (r *Registry) appendActive(cfg config.ServerConfig) Handle {
	h := r.nextID
	r.nextID++

	r.entries[h] = &Entry{
		handle: h,
		config: cfg,
		conn:   r.factory(&cfg, r.logger),
	}
	r.active = append(r.active, h)
	return h
}

func (r *Registry) indexOf(name string) int {
	for i, h := range r.active {
		if r.entries[h].Name() == name {
			return i
		}
	}
	return -1
}

// save persists the ordered active list. Persistence is synchronous and
// unconditional after every mutation; a store failure is best-effort and
// only logged.
func (r *Registry) save() {
	if r.store == nil {
		return
	}

	list := make([]*config.ServerConfig, 0, len(r.active))
	for _, h := range r.active {
		cfg := r.entries[h].Config()
		list = append(list, &cfg)
	}

	if err := r.store.WriteServerList(list); err != nil {
		r.logger.Warn("Failed to persist server list", zap.Error(err))
	}
}

func (r *Registry) publish(event events.Event) {
	if r.bus != nil {
		r.bus.Publish(event)
	}
}
