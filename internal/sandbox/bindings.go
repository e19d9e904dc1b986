package sandbox

import (
	"sort"

	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/registry"
)

// runtimeVersion is reported by the base runtime binding.
const runtimeVersion = "18.3.0-crucible"

// buildRealBindings constructs the genuine allowlist bindings: the base
// runtime library's element model and the template-component library. Only
// the Permissive strategy (and therefore phase 2 of the two-phase tiers)
// sees these.
func buildRealBindings(vm *goja.Runtime, reg *registry.ComponentRegistry) (map[string]goja.Value, error) {
	base, err := buildRuntimeBinding(vm)
	if err != nil {
		return nil, err
	}
	components, err := buildComponentBinding(vm, reg)
	if err != nil {
		return nil, err
	}

	return map[string]goja.Value{
		ModuleBase:       base,
		ModuleComponents: components,
	}, nil
}

// buildRuntimeBinding assembles the base runtime library: element
// construction, fragments, and ref forwarding.
func buildRuntimeBinding(vm *goja.Runtime) (*goja.Object, error) {
	base := vm.NewObject()

	createElement := func(call goja.FunctionCall) goja.Value {
		var children []goja.Value
		if len(call.Arguments) > 2 {
			children = call.Arguments[2:]
		}
		return newElement(vm, call.Argument(0), call.Argument(1), children)
	}

	cloneElement := func(call goja.FunctionCall) goja.Value {
		source := call.Argument(0)
		if !isElement(vm, source) {
			panic(vm.NewTypeError("cloneElement requires an element"))
		}
		src := source.ToObject(vm)

		merged := vm.NewObject()
		copyOwnProps(vm, merged, src.Get("props"))
		copyOwnProps(vm, merged, call.Argument(1))

		children := src.Get("children")
		if len(call.Arguments) > 2 {
			items := make([]interface{}, 0, len(call.Arguments)-2)
			for _, arg := range call.Arguments[2:] {
				items = append(items, arg)
			}
			children = vm.NewArray(items...)
		}

		el := vm.NewObject()
		_ = el.Set("$$typeof", ElementMarker)
		_ = el.Set("type", src.Get("type"))
		_ = el.Set("props", merged)
		_ = el.Set("children", children)

		return el
	}

	forwardRef := func(call goja.FunctionCall) goja.Value {
		return call.Argument(0)
	}

	isValidElement := func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(isElement(vm, call.Argument(0)))
	}

	for name, value := range map[string]interface{}{
		"createElement":  createElement,
		"cloneElement":   cloneElement,
		"forwardRef":     forwardRef,
		"isValidElement": isValidElement,
		"Fragment":       FragmentMarker,
		"version":        runtimeVersion,
	} {
		if err := base.Set(name, value); err != nil {
			return nil, err
		}
	}

	// Self-referential default export, so both namespace and default
	// import forms resolve to the same binding.
	if err := base.Set("default", base); err != nil {
		return nil, err
	}

	return base, nil
}

// buildComponentBinding assembles the template-component library from the
// registry: each component lowers to an intrinsic element with its tag and
// default styles.
func buildComponentBinding(vm *goja.Runtime, reg *registry.ComponentRegistry) (*goja.Object, error) {
	components := vm.NewObject()

	for _, name := range reg.Names() {
		info, _ := reg.Get(name)
		if err := components.Set(name, componentFunc(vm, info)); err != nil {
			return nil, err
		}
	}

	if err := components.Set("default", components); err != nil {
		return nil, err
	}

	return components, nil
}

// componentFunc builds the function component for one registry entry.
func componentFunc(vm *goja.Runtime, info registry.ComponentInfo) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		props := vm.NewObject()
		var children goja.Value = goja.Undefined()

		if arg := call.Argument(0); arg != nil && !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			src := arg.ToObject(vm)
			for _, key := range src.Keys() {
				if key == "children" {
					children = src.Get(key)
					continue
				}
				_ = props.Set(key, src.Get(key))
			}
		}

		mergeDefaultStyle(vm, props, info.DefaultStyle)

		var childList []goja.Value
		if !info.Void && children != nil && !goja.IsUndefined(children) && !goja.IsNull(children) {
			childList = []goja.Value{children}
		}

		return newElement(vm, vm.ToValue(info.Tag), props, childList)
	}
}

// newElement is the single element constructor shared by the runtime
// binding and the component library.
func newElement(vm *goja.Runtime, typ goja.Value, props goja.Value, children []goja.Value) goja.Value {
	el := vm.NewObject()
	_ = el.Set("$$typeof", ElementMarker)
	_ = el.Set("type", typ)

	copied := vm.NewObject()
	copyOwnProps(vm, copied, props)
	_ = el.Set("props", copied)

	items := make([]interface{}, 0, len(children))
	for _, child := range children {
		items = append(items, child)
	}
	_ = el.Set("children", vm.NewArray(items...))

	return el
}

// copyOwnProps copies the own enumerable properties of src onto dst.
func copyOwnProps(vm *goja.Runtime, dst *goja.Object, src goja.Value) {
	if src == nil || goja.IsUndefined(src) || goja.IsNull(src) {
		return
	}
	obj := src.ToObject(vm)
	for _, key := range obj.Keys() {
		_ = dst.Set(key, obj.Get(key))
	}
}

// mergeDefaultStyle layers a component's default styles under any styles
// the template supplied; template styles win. Default keys are applied in
// sorted order so rendering stays byte-deterministic.
func mergeDefaultStyle(vm *goja.Runtime, props *goja.Object, defaults map[string]string) {
	if len(defaults) == 0 {
		return
	}

	style := vm.NewObject()

	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_ = style.Set(key, defaults[key])
	}

	copyOwnProps(vm, style, props.Get("style"))
	_ = props.Set("style", style)
}

// isElement reports whether v carries the element marker.
func isElement(vm *goja.Runtime, v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	marker := obj.Get("$$typeof")

	return marker != nil && marker.String() == ElementMarker
}
