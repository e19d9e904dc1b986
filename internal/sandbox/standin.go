package sandbox

import (
	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/registry"
)

// buildStandInBindings constructs the inert allowlist bindings used during
// phase-1 validation runs. They satisfy the same import names and call
// shapes as the real bindings but construct nothing: element creation
// returns an empty object and ref forwarding returns its argument
// unchanged. Genuine framework objects never enter a validation
// environment, so nothing of value can leak back across its boundary.
func buildStandInBindings(vm *goja.Runtime, reg *registry.ComponentRegistry) (map[string]goja.Value, error) {
	emptyObject := func(goja.FunctionCall) goja.Value {
		return vm.NewObject()
	}
	passthrough := func(call goja.FunctionCall) goja.Value {
		return call.Argument(0)
	}
	alwaysFalse := func(goja.FunctionCall) goja.Value {
		return vm.ToValue(false)
	}

	base := vm.NewObject()
	for name, value := range map[string]interface{}{
		"createElement":  emptyObject,
		"cloneElement":   emptyObject,
		"forwardRef":     passthrough,
		"isValidElement": alwaysFalse,
		"Fragment":       FragmentMarker,
		"version":        runtimeVersion,
	} {
		if err := base.Set(name, value); err != nil {
			return nil, err
		}
	}
	if err := base.Set("default", base); err != nil {
		return nil, err
	}

	components := vm.NewObject()
	for _, name := range reg.Names() {
		if err := components.Set(name, emptyObject); err != nil {
			return nil, err
		}
	}
	if err := components.Set("default", components); err != nil {
		return nil, err
	}

	return map[string]goja.Value{
		ModuleBase:       base,
		ModuleComponents: components,
	}, nil
}
