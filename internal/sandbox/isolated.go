package sandbox

import (
	"context"

	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/transpiler"
)

// HeapIsolated is the two-phase subprocess strategy. Phase 1 executes the
// module in a separate worker process whose heap is capped and whose
// bindings are inert stand-ins; only a pass/fail verdict crosses back.
// Phase 2 re-executes the validated module in-process with real bindings,
// because framework objects cannot cross the process boundary. A module
// that misbehaves only under real bindings is still contained by phase 2's
// own allowlist and wall-clock enforcement.
type HeapIsolated struct {
	engine ValidationEngine
	inner  *Permissive
	logger logging.Logger
}

// NewHeapIsolated builds the subprocess-validated strategy.
func NewHeapIsolated(opts Options) *HeapIsolated {
	opts = opts.withDefaults()

	engine := opts.Engine
	if engine == nil {
		engine = NewProcessEngine(opts.WorkerPath, opts.MemoryLimit, opts.Timeout)
	}

	return &HeapIsolated{
		engine: engine,
		inner:  NewPermissive(opts),
		logger: opts.Logger.WithComponent("sandbox.heap-isolated"),
	}
}

func (h *HeapIsolated) Kind() Kind {
	return StrategyHeapIsolated
}

// Execute validates the module in isolation, then runs it for real.
func (h *HeapIsolated) Execute(ctx context.Context, module *transpiler.CompiledModule) (*ModuleExports, error) {
	h.logger.Debug(ctx, "validating module in isolated worker", "code_bytes", len(module.Code))

	if err := h.engine.Validate(ctx, module.Code); err != nil {
		return nil, err
	}

	return h.inner.Execute(ctx, module)
}
