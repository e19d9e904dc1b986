package sandbox

import (
	"context"
	"time"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/registry"
	"github.com/conneroisu/crucible/internal/transpiler"
)

// Permissive runs the module directly in an in-process JavaScript engine
// with real allowlist bindings. The engine shares the host address space,
// so the hardened environment and the wall-clock interrupt are
// defense-in-depth measures, not an isolation boundary. The two-phase
// strategies delegate their real execution here after their validation
// phase passes.
type Permissive struct {
	timeout  time.Duration
	registry *registry.ComponentRegistry
	logger   logging.Logger
}

// NewPermissive builds the in-process strategy.
func NewPermissive(opts Options) *Permissive {
	opts = opts.withDefaults()

	return &Permissive{
		timeout:  opts.Timeout,
		registry: opts.Registry,
		logger:   opts.Logger.WithComponent("sandbox.permissive"),
	}
}

func (p *Permissive) Kind() Kind {
	return StrategyPermissive
}

// Execute runs the compiled module and returns its exports. On success the
// returned ModuleExports owns the execution context and must be closed by
// the caller; on failure the context is torn down here.
func (p *Permissive) Execute(ctx context.Context, module *transpiler.CompiledModule) (*ModuleExports, error) {
	ec, err := newExecutionContext(p.registry, p.timeout, false)
	if err != nil {
		return nil, errors.FromError(errors.PhaseExecution, err)
	}

	p.logger.Debug(ctx, "executing module in-process", "code_bytes", len(module.Code))

	exports, err := ec.runModule(ctx, module.Code)
	if err != nil {
		ec.Close()
		return nil, errors.FromError(errors.PhaseExecution, err)
	}

	return &ModuleExports{ec: ec, exports: exports}, nil
}
