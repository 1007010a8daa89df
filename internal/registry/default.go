package registry

import "sync"

// Process-wide registry state. Construction is deferred to the first
// Default call; teardown is explicit and driven by the owning process's
// shutdown sequence rather than an exit handler.
var (
	defaultMu   sync.Mutex
	defaultReg  *Registry
	defaultOpts Options
)

// Configure sets the options Default uses to build the process-wide
// registry. Calling it after the registry exists only affects the next
// construction cycle.
func Configure(opts Options) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOpts = opts
}

// Default returns the process-wide registry, constructing it on first
// use from the configured options.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultReg == nil {
		defaultReg = New(defaultOpts)
	}
	return defaultReg
}

// ResetDefault tears down the process-wide registry and releases it.
// The next Default call rebuilds from scratch, which keeps repeated
// construction/destruction cycles testable. A process that exits
// without calling this leaks entries rather than double-freeing them.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultReg != nil {
		defaultReg.Teardown()
		defaultReg = nil
	}
}
