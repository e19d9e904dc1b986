// Package sandbox executes compiled template modules under escalating
// isolation tiers.
//
// Three strategies implement one contract: Permissive runs the module in an
// in-process JavaScript engine with a hardened, allowlist-only global
// environment; Heap-Isolated first validates the module in a separate
// memory-capped worker process against stand-in bindings; WASM-Validated
// first lowers the module's import surface to a synthetic WebAssembly
// module and instantiates it under an interpreter-mode WASM engine. The
// two-phase tiers always delegate their real execution to Permissive,
// because genuine framework objects cannot cross an isolation boundary.
//
// Every strategy enforces the same module allowlist during real execution;
// that is the one security property the pipeline depends on regardless of
// tier.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/registry"
	"github.com/conneroisu/crucible/internal/transpiler"
)

// Kind selects one of the three sandbox strategies.
type Kind string

const (
	StrategyPermissive    Kind = "permissive"
	StrategyHeapIsolated  Kind = "heap-isolated"
	StrategyWASMValidated Kind = "wasm-validated"
)

// DefaultKind is the strongest available tier.
func DefaultKind() Kind {
	return StrategyHeapIsolated
}

// ParseKind converts a user-supplied strategy name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case StrategyPermissive, StrategyHeapIsolated, StrategyWASMValidated:
		return Kind(s), nil
	case "":
		return DefaultKind(), nil
	default:
		return "", fmt.Errorf("unknown sandbox strategy %q (valid: %s, %s, %s)",
			s, StrategyPermissive, StrategyHeapIsolated, StrategyWASMValidated)
	}
}

// Strategy executes a compiled module and produces its exports. The
// pipeline depends only on this interface; adding a strategy must not
// touch pipeline code.
type Strategy interface {
	Kind() Kind
	Execute(ctx context.Context, module *transpiler.CompiledModule) (*ModuleExports, error)
}

// DefaultTimeout bounds the wall-clock time of one sandboxed run.
const DefaultTimeout = 5 * time.Second

// DefaultMemoryLimit caps the heap of a phase-1 validation environment.
const DefaultMemoryLimit = int64(128 << 20)

// Options configures strategy construction.
type Options struct {
	// Timeout bounds each sandboxed run. Zero means DefaultTimeout.
	Timeout time.Duration

	// MemoryLimit caps phase-1 validation heaps in bytes. Zero means
	// DefaultMemoryLimit.
	MemoryLimit int64

	// WorkerPath is the binary re-executed as the heap-isolated
	// validation worker. Empty means the current executable.
	WorkerPath string

	// Engine overrides the heap-isolated phase-1 transport. Nil means a
	// separate worker process.
	Engine ValidationEngine

	// Registry enumerates the template-component library. Nil means the
	// built-in set.
	Registry *registry.ComponentRegistry

	Logger logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MemoryLimit <= 0 {
		o.MemoryLimit = DefaultMemoryLimit
	}
	if o.Registry == nil {
		o.Registry = registry.NewComponentRegistry()
	}
	if o.Logger == nil {
		o.Logger = logging.NewDiscard()
	}

	return o
}

// New constructs the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	opts = opts.withDefaults()

	switch kind {
	case StrategyPermissive:
		return NewPermissive(opts), nil
	case StrategyHeapIsolated:
		return NewHeapIsolated(opts), nil
	case StrategyWASMValidated:
		return NewWASMValidated(opts), nil
	default:
		return nil, fmt.Errorf("unknown sandbox strategy %q", kind)
	}
}
