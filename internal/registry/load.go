package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"execd-go/internal/cfgfile"
	"execd-go/internal/events"
)

// tierResult is the outcome of one load tier. The pipeline driver
// decides fallthrough explicitly rather than relying on a catch-all.
type tierResult struct {
	count int
	err   error
}

// load runs the three-tier pipeline. Each tier is attempted only when
// the previous one produced zero entries, so the registry always ends
// load with at least one usable configuration.
func (r *Registry) load() {
	source := "preferences"
	res := r.restoreFromPreferences()
	if res.err != nil {
		msg := fmt.Sprintf("Problem restoring saved servers: %v", res.err)
		r.logger.Error("Preference restore failed", zap.Error(res.err))
		if r.notify != nil {
			r.notify(msg)
		}
		r.publish(events.Event{Type: events.RegistryLoadError, Data: msg})
	}

	count := res.count
	if count == 0 {
		source = "directory"
		count = r.scanServersDir().count
	}
	if count == 0 {
		source = "default"
		r.appendDefault()
		count = 1
	}

	r.logger.Info("Server registry loaded",
		zap.String("source", source),
		zap.Int("servers", count))
	r.publish(events.Event{
		Type: events.RegistryLoaded,
		Data: events.LoadedData{Source: source, Count: count},
	})
}

// restoreFromPreferences rebuilds the active list from the saved
// sequence. Saved entries were unique when written, but the list may
// have been edited externally, so names are validated on load; a
// colliding entry is renamed with the standard numeric suffix rather
// than silently reproducing the violation.
func (r *Registry) restoreFromPreferences() tierResult {
	if r.store == nil {
		return tierResult{}
	}

	list, err := r.store.ReadServerList()
	if err != nil {
		return tierResult{err: err}
	}

	count := 0
	for _, cfg := range list {
		if cfg == nil {
			continue
		}
		c := *cfg
		if _, ok := r.Find(c.Name); ok || c.Name == "" {
			renamed := r.dedupName(c.Name)
			r.logger.Warn("Invalid name in saved server list",
				zap.String("server", c.Name),
				zap.String("renamed", renamed))
			c.Name = renamed
		}
		r.appendActive(c)
		count++
	}

	return tierResult{count: count}
}

// scanServersDir loads every *.cfg file in the servers directory.
// A missing directory yields an empty listing, not an error; a file
// that fails to load is skipped and the scan continues.
func (r *Registry) scanServersDir() tierResult {
	if r.serversDir == "" || r.loader == nil {
		return tierResult{}
	}

	listing, err := os.ReadDir(r.serversDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("Failed to list servers directory",
				zap.String("dir", r.serversDir),
				zap.Error(err))
		}
		return tierResult{}
	}

	r.logger.Debug("Scanning servers directory", zap.String("dir", r.serversDir))

	count := 0
	for _, entry := range listing {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), cfgfile.ConfigFileSuffix) {
			continue
		}

		path := filepath.Join(r.serversDir, entry.Name())
		cfg, err := r.loader.Load(path)
		if err != nil {
			r.logger.Warn("Skipping server configuration file",
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		r.Add(*cfg)
		count++
	}

	return tierResult{count: count}
}

// appendDefault registers the built-in fallback configuration. The
// registry is empty at this point, so no de-duplication is needed.
func (r *Registry) appendDefault() {
	cfg := r.newDefault()
	r.logger.Info("Appending built-in default server", zap.String("server", cfg.Name))
	r.appendActive(*cfg)
}

// dedupName applies the Add suffix search to a base name without
// registering anything.
func (r *Registry) dedupName(base string) string {
	if base == "" {
		base = "server"
	}
	name := base
	for count := 0; ; {
		if _, ok := r.Find(name); !ok {
			return name
		}
		count++
		name = fmt.Sprintf("%s_%d", base, count)
	}
}
