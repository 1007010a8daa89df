// Package cfgfile reads server configuration files from disk.
package cfgfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"execd-go/internal/config"
	"execd-go/internal/parser"
)

// Suffix matched by the directory scan and the watcher.
const ConfigFileSuffix = ".cfg"

// ParseError reports that a configuration file produced no usable
// server configuration.
type ParseError struct {
	Path   string
	Errors []string
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("no server configuration found in %s", e.Path)
	}
	return fmt.Sprintf("no server configuration found in %s: %s", e.Path, strings.Join(e.Errors, "; "))
}

// Loader extracts a server configuration from a single file by driving
// the parser service to completion.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a configuration file loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads one configuration file and returns the server configuration
// it contains. The file is checked for readability before the parser is
// invoked; parser errors are logged but only fatal when no usable
// top-level mapping was produced. The first mapping in the file wins.
func (l *Loader) Load(path string) (*config.ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("server configuration file unreadable: %w", err)
	}
	_ = f.Close()

	job := parser.NewJob(path, l.logger)
	job.Start()
	job.Wait()

	if errs := job.Errors(); len(errs) > 0 {
		l.logger.Error("Parser reported errors",
			zap.String("path", path),
			zap.Strings("errors", errs))
	}

	mappings := parser.FindData[*parser.Mapping](job.Bank())
	if len(mappings) == 0 {
		return nil, &ParseError{Path: path, Errors: job.Errors()}
	}

	cfg := &config.ServerConfig{}
	if err := mappings[0].Decode(cfg); err != nil {
		return nil, &ParseError{Path: path, Errors: append(job.Errors(), err.Error())}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Path: path, Errors: append(job.Errors(), err.Error())}
	}

	cfg.Created = time.Now()
	return cfg, nil
}
