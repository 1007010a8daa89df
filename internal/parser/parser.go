// Package parser provides the structured-file parsing service used to read
// server configuration files. A parse runs as a background job: callers
// start it, wait for completion, then query the collected data bank.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Datum is a typed piece of data produced by a parse run.
type Datum interface {
	Kind() string
}

// Bank collects the typed data produced by a parse run.
type Bank struct {
	mu   sync.Mutex
	data []Datum
}

// Append adds a datum to the bank.
func (b *Bank) Append(d Datum) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, d)
}

// All returns every datum in insertion order.
func (b *Bank) All() []Datum {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Datum, len(b.data))
	copy(out, b.data)
	return out
}

// FindData returns all data of concrete type T, in insertion order.
func FindData[T Datum](b *Bank) []T {
	var out []T
	for _, d := range b.All() {
		if t, ok := d.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Mapping is a top-level mapping document extracted from a parsed file.
type Mapping struct {
	values map[string]interface{}
}

// Kind identifies the datum type in the bank.
func (m *Mapping) Kind() string { return "mapping" }

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Decode unmarshals the mapping into out.
func (m *Mapping) Decode(out interface{}) error {
	data, err := yaml.Marshal(m.values)
	if err != nil {
		return fmt.Errorf("failed to re-encode mapping: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode mapping: %w", err)
	}
	return nil
}

// Job parses a single file in the background. The job is single-shot:
// Start launches the parse, Wait blocks until it has run to completion.
// The job's internal execution model is opaque to callers; the contract
// is submit request, await completion.
type Job struct {
	path   string
	logger *zap.Logger

	startOnce sync.Once
	done      chan struct{}

	mu   sync.Mutex
	errs []string
	bank *Bank
}

// NewJob creates a parse job for the given file path.
func NewJob(path string, logger *zap.Logger) *Job {
	return &Job{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
		bank:   &Bank{},
	}
}

// Start launches the parse. Calling Start more than once is a no-op.
func (j *Job) Start() {
	j.startOnce.Do(func() {
		go j.run()
	})
}

// Wait blocks until the parse has completed. This is the suspension point
// of the loader: no cancellation semantics are defined for a running parse.
func (j *Job) Wait() {
	<-j.done
}

// Errors returns the messages collected during the parse. A non-empty
// result does not imply the parse produced no usable data.
func (j *Job) Errors() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.errs))
	copy(out, j.errs)
	return out
}

// Bank returns the data bank populated by the parse.
func (j *Job) Bank() *Bank {
	return j.bank
}

func (j *Job) addError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errs = append(j.errs, msg)
}

func (j *Job) run() {
	defer close(j.done)

	data, err := os.ReadFile(j.path)
	if err != nil {
		j.addError(fmt.Sprintf("failed to read %s: %v", j.path, err))
		return
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc interface{}
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// The decoder state is unreliable after a syntax error,
			// keep what was already collected and stop.
			j.addError(fmt.Sprintf("parse error in %s: %v", j.path, err))
			break
		}

		switch v := doc.(type) {
		case map[string]interface{}:
			j.bank.Append(&Mapping{values: v})
		case nil:
			// Empty document, nothing to collect.
		default:
			j.addError(fmt.Sprintf("unexpected top-level %T in %s", v, j.path))
		}
	}

	j.logger.Debug("parse completed",
		zap.String("path", j.path),
		zap.Int("data", len(j.bank.All())),
		zap.Int("errors", len(j.Errors())))
}
