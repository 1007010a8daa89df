package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"execd-go/internal/config"
	"execd-go/internal/events"
	"execd-go/internal/remote"
)

// fakeStore is an in-memory preference store.
type fakeStore struct {
	list    []*config.ServerConfig
	readErr error
	writes  int
}

func (f *fakeStore) ReadServerList() ([]*config.ServerConfig, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.list, nil
}

func (f *fakeStore) WriteServerList(list []*config.ServerConfig) error {
	saved := make([]*config.ServerConfig, len(list))
	for i, cfg := range list {
		c := *cfg
		saved[i] = &c
	}
	f.list = saved
	f.writes++
	return nil
}

func named(name string) config.ServerConfig {
	return config.ServerConfig{Name: name, Connection: config.ConnectionLocal}
}

func newTestRegistry(t *testing.T, st PreferenceStore) *Registry {
	t.Helper()
	r := New(Options{Store: st, Logger: zap.NewNop()})
	t.Cleanup(r.Teardown)
	return r
}

func TestRegistry_AddResolvesCollisions(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st)
	r.Remove("local") // drop the built-in default for a clean slate

	r.Add(named("foo"))
	r.Add(named("foo"))
	r.Add(named("foo"))

	assert.Equal(t, []string{"foo", "foo_1", "foo_2"}, r.ListNames())
}

func TestRegistry_AddRescansAfterRemoval(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	r.Add(named("foo"))
	r.Add(named("foo")) // foo_1
	r.Remove("foo_1")

	// The suffix search rescans current active names each time, so the
	// gap left by foo_1 is reused.
	h := r.Add(named("foo"))
	entry, ok := r.Get(h)
	require.True(t, ok)
	assert.Equal(t, "foo_1", entry.Name())
}

func TestRegistry_AddEnforcesNonEmptyName(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	h := r.Add(config.ServerConfig{})
	entry, ok := r.Get(h)
	require.True(t, ok)
	assert.NotEmpty(t, entry.Name())
}

func TestRegistry_FindAndRemove(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st)
	r.Remove("local")

	h := r.Add(named("alpha"))

	found, ok := r.Find("alpha")
	require.True(t, ok)
	assert.Equal(t, h, found)

	_, ok = r.Find("beta")
	assert.False(t, ok)

	writes := st.writes
	r.Remove("beta") // soft no-op, still persists
	assert.Equal(t, writes+1, st.writes)
	assert.Equal(t, []string{"alpha"}, r.ListNames())

	r.Remove("alpha")
	assert.Empty(t, r.ListNames())
}

func TestRegistry_RemoveHandle(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	h := r.Add(named("alpha"))
	r.Add(named("beta"))

	r.RemoveHandle(h)
	assert.Equal(t, []string{"beta"}, r.ListNames())
	assert.False(t, r.IsActive(h))
}

func TestRegistry_MoveUpDown(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	r.Add(named("a"))
	r.Add(named("b"))
	r.Add(named("c"))

	// Boundary no-ops
	r.MoveUp("a")
	r.MoveDown("c")
	assert.Equal(t, []string{"a", "b", "c"}, r.ListNames())

	r.MoveUp("c")
	assert.Equal(t, []string{"a", "c", "b"}, r.ListNames())

	r.MoveDown("a")
	assert.Equal(t, []string{"c", "a", "b"}, r.ListNames())

	// Unknown names are soft no-ops
	r.MoveUp("zzz")
	r.MoveDown("zzz")
	assert.Equal(t, []string{"c", "a", "b"}, r.ListNames())
}

func TestRegistry_ListNamesMatchesPersistedOrder(t *testing.T) {
	st := &fakeStore{}
	r := newTestRegistry(t, st)
	r.Remove("local")

	r.Add(named("a"))
	r.Add(named("b"))
	r.MoveUp("b")

	persisted := make([]string, 0, len(st.list))
	for _, cfg := range st.list {
		persisted = append(persisted, cfg.Name)
	}
	assert.Equal(t, r.ListNames(), persisted)
}

func TestRegistry_HandleSurvivesRemoval(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	h := r.Add(named("alpha"))
	r.Remove("alpha")

	// The handle obtained before removal stays readable; the entry is
	// only reported as no longer active.
	entry, ok := r.Get(h)
	require.True(t, ok)
	assert.Equal(t, "alpha", entry.Name())
	assert.False(t, r.IsActive(h))
}

func TestRegistry_RemoveThenReAdd(t *testing.T) {
	st := &fakeStore{list: []*config.ServerConfig{
		{Name: "A", Connection: config.ConnectionLocal},
		{Name: "B", Connection: config.ConnectionLocal},
	}}
	r := newTestRegistry(t, st)
	require.Equal(t, []string{"A", "B"}, r.ListNames())

	r.Remove("A")
	r.Add(named("B"))

	assert.Equal(t, []string{"B", "B_1"}, r.ListNames())
}

func TestRegistry_ConnectAndCloseAll(t *testing.T) {
	r := newTestRegistry(t, &fakeStore{})
	r.Remove("local")

	hA := r.Add(named("a"))
	hB := r.Add(named("b"))

	r.ConnectServers(context.Background(), []string{"a", "missing", "b"})

	entryA, _ := r.Get(hA)
	entryB, _ := r.Get(hB)
	assert.Equal(t, remote.StateReady, entryA.Connection().Info().State)
	assert.Equal(t, remote.StateReady, entryB.Connection().Info().State)

	r.CloseAllConnections()
	assert.Equal(t, remote.StateDisconnected, entryA.Connection().Info().State)
	assert.Equal(t, remote.StateDisconnected, entryB.Connection().Info().State)
}

func TestRegistry_TeardownIsIdempotent(t *testing.T) {
	r := New(Options{Store: &fakeStore{}, Logger: zap.NewNop()})

	h := r.Add(named("alpha"))
	r.Remove("alpha")

	r.Teardown()
	r.Teardown()

	_, ok := r.Get(h)
	assert.False(t, ok)
	assert.Empty(t, r.ListNames())
}

func TestRegistry_PublishesEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	added := bus.Subscribe(events.ServerAdded)
	removed := bus.Subscribe(events.ServerRemoved)

	r := New(Options{Store: &fakeStore{}, Bus: bus, Logger: zap.NewNop()})
	defer r.Teardown()
	r.Remove("local")

	r.Add(named("alpha"))
	r.Remove("alpha")

	ev := <-added
	assert.Equal(t, "alpha", ev.ServerName)
	ev = <-removed
	assert.Equal(t, "alpha", ev.ServerName)
}

func TestDefault_ConstructionCycle(t *testing.T) {
	Configure(Options{Store: &fakeStore{}, Logger: zap.NewNop()})
	t.Cleanup(ResetDefault)

	first := Default()
	assert.Same(t, first, Default())

	ResetDefault()
	second := Default()
	assert.NotSame(t, first, second)
	// A fresh cycle re-runs the load pipeline down to the built-in default.
	assert.Equal(t, []string{"local"}, second.ListNames())
}
