package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/registry"
	"github.com/conneroisu/crucible/internal/transpiler"
)

// wasmPageSize is the WebAssembly linear-memory page granularity.
const wasmPageSize = 65536

// WASMValidated is the two-phase WebAssembly strategy. Phase 1 lowers the
// module's string-literal import surface to a synthetic WASM binary and
// instantiates it under an interpreter-mode runtime where only the
// allowlisted names exist as host modules; the runtime's link step rejects
// everything else. Phase 2 re-executes the module in-process with real
// bindings. The pre-filter sees only literal imports, so dynamic require
// expressions pass phase 1 and are rejected by phase 2's resolver.
type WASMValidated struct {
	inner       *Permissive
	registry    *registry.ComponentRegistry
	timeout     time.Duration
	memoryPages uint32
	logger      logging.Logger
}

// NewWASMValidated builds the WASM-prefiltered strategy.
func NewWASMValidated(opts Options) *WASMValidated {
	opts = opts.withDefaults()

	pages := uint32(opts.MemoryLimit / wasmPageSize)
	if pages == 0 {
		pages = 1
	}

	return &WASMValidated{
		inner:       NewPermissive(opts),
		registry:    opts.Registry,
		timeout:     opts.Timeout,
		memoryPages: pages,
		logger:      opts.Logger.WithComponent("sandbox.wasm-validated"),
	}
}

func (w *WASMValidated) Kind() Kind {
	return StrategyWASMValidated
}

// Execute pre-filters the module's import surface, then runs it for real.
func (w *WASMValidated) Execute(ctx context.Context, module *transpiler.CompiledModule) (*ModuleExports, error) {
	if err := w.validateImports(ctx, module.Code); err != nil {
		return nil, err
	}

	return w.inner.Execute(ctx, module)
}

// validateImports instantiates the synthetic import module under a
// feature-pinned interpreter runtime. Pinning to the v1 core feature set
// keeps the accepted binary surface fixed even when the runtime dependency
// is upgraded.
func (w *WASMValidated) validateImports(ctx context.Context, code string) error {
	names := scanRequires(code)
	w.logger.Debug(ctx, "pre-filtering import surface", "imports", len(names))

	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	rt := wazero.NewRuntimeWithConfig(runCtx, wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(wazeroapi.CoreFeaturesV1).
		WithMemoryLimitPages(w.memoryPages).
		WithCloseOnContextDone(true))
	defer rt.Close(context.Background())

	if err := w.instantiateHostModules(runCtx, rt); err != nil {
		return errors.NewExecutionError("building allowlist host modules", err)
	}

	compiled, err := rt.CompileModule(runCtx, synthesizeImportModule(names))
	if err != nil {
		return w.classifyWASM(runCtx, names, err)
	}
	defer compiled.Close(context.Background())

	instance, err := rt.InstantiateModule(runCtx, compiled, wazero.NewModuleConfig().
		WithName("template").
		WithStartFunctions("_start"))
	if err != nil {
		return w.classifyWASM(runCtx, names, err)
	}

	return instance.Close(context.Background())
}

// instantiateHostModules registers the two allowlisted names as host
// modules. Each also exports the component library's member names as
// no-op functions, so the host-visible surface enumerates exactly the
// stand-in capability set.
func (w *WASMValidated) instantiateHostModules(ctx context.Context, rt wazero.Runtime) error {
	noop := func(context.Context) {}

	base := rt.NewHostModuleBuilder(ModuleBase)
	base.NewFunctionBuilder().WithFunc(noop).Export(requireImportName)
	for _, member := range []string{"createElement", "cloneElement", "forwardRef", "isValidElement"} {
		base.NewFunctionBuilder().WithFunc(noop).Export(member)
	}
	if _, err := base.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiating %q host module: %w", ModuleBase, err)
	}

	components := rt.NewHostModuleBuilder(ModuleComponents)
	components.NewFunctionBuilder().WithFunc(noop).Export(requireImportName)
	for _, name := range w.registry.Names() {
		components.NewFunctionBuilder().WithFunc(noop).Export(name)
	}
	if _, err := components.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiating %q host module: %w", ModuleComponents, err)
	}

	return nil
}

// classifyWASM maps a runtime failure to the pipeline taxonomy. A link
// failure names the first disallowed import; a deadline hit is a timeout.
func (w *WASMValidated) classifyWASM(runCtx context.Context, names []string, err error) error {
	for _, name := range names {
		if !allowedModules[name] {
			return rejectedModuleError(name)
		}
	}

	if runCtx.Err() != nil {
		return errors.NewExecutionTimeout(fmt.Sprintf("execution timed out after %s", w.timeout))
	}

	return errors.NewExecutionError("import surface validation failed", err)
}
