package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/errors"
)

// The capability allowlist: exactly two module names resolve from inside
// sandboxed code. Everything else is rejected by name, identically across
// all strategies.
const (
	// ModuleBase is the base runtime library.
	ModuleBase = "react"

	// ModuleComponents is the template-component library.
	ModuleComponents = "@react-email/components"
)

// allowedModules is the fixed allowlist shared by the in-engine resolver
// and the WASM import pre-filter.
var allowedModules = map[string]bool{
	ModuleBase:       true,
	ModuleComponents: true,
}

// rejectedModuleError builds the execution-phase error for a disallowed
// import. Every strategy produces this exact message so callers see one
// contract regardless of tier.
func rejectedModuleError(name string) *errors.CompileError {
	return errors.NewExecutionError(fmt.Sprintf(
		"cannot find module %q: only %q and %q are importable from sandboxed templates",
		name, ModuleBase, ModuleComponents,
	), nil)
}

// moduleResolver backs the require binding point of a CommonJS module run.
type moduleResolver struct {
	vm       *goja.Runtime
	bindings map[string]goja.Value
	rejected *errors.CompileError
}

func newModuleResolver(vm *goja.Runtime, bindings map[string]goja.Value) *moduleResolver {
	return &moduleResolver{vm: vm, bindings: bindings}
}

// requireValue returns the require function exposed to the module.
func (r *moduleResolver) requireValue() goja.Value {
	return r.vm.ToValue(r.require)
}

// require resolves an allowlisted name to its binding and throws inside
// the runtime for anything else. The first rejection is also recorded
// host-side so classification does not depend on the thrown value
// surviving guest catch blocks untouched.
func (r *moduleResolver) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if binding, ok := r.bindings[name]; ok {
		return binding
	}

	err := rejectedModuleError(name)
	if r.rejected == nil {
		r.rejected = err
	}
	panic(r.vm.NewGoError(err))
}

// rejection returns the first allowlist violation seen during this run.
func (r *moduleResolver) rejection() *errors.CompileError {
	return r.rejected
}
