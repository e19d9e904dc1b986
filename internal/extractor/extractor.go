// Package extractor selects the template's component function from a
// module's exports.
//
// Templates conventionally default-export one function component. The
// extractor honors that convention and its common variants: the exports
// object itself being the function, a callable default export, and a
// default export object whose first callable member is the component.
package extractor

import (
	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/sandbox"
)

// Extract resolves the component function from module exports. The
// returned component shares the lifetime of exports; closing exports
// invalidates it.
func Extract(exports *sandbox.ModuleExports) (*sandbox.ResolvedComponent, error) {
	obj := exports.Object()

	// `module.exports = function Email() {...}` leaves the exports object
	// itself callable.
	if fn, ok := goja.AssertFunction(obj); ok {
		return exports.Component(fn), nil
	}

	def := obj.Get("default")
	if def == nil || goja.IsUndefined(def) || goja.IsNull(def) {
		return nil, missingComponent()
	}

	if fn, ok := goja.AssertFunction(def); ok {
		return exports.Component(fn), nil
	}

	// A transpiled `export default { Email }` lands here: take the first
	// callable member. Key order follows the object's own insertion order,
	// so extraction is deterministic for a given module.
	defObj := def.ToObject(exports.Runtime())
	for _, key := range defObj.Keys() {
		if fn, ok := goja.AssertFunction(defObj.Get(key)); ok {
			return exports.Component(fn), nil
		}
	}

	return nil, missingComponent()
}

func missingComponent() *errors.CompileError {
	return errors.NewExecutionError(
		"template does not export a component: export a component function as the default export", nil)
}
