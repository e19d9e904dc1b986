package sandbox

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/registry"
)

const (
	// ElementMarker tags element objects produced by the runtime binding's
	// element-construction call.
	ElementMarker = "crucible.element"

	// FragmentMarker is the element type used for children-only grouping.
	FragmentMarker = "crucible.Fragment"
)

// hardenProgram neuters code generation from strings. Replacing the
// constructor slot on every function prototype closes the
// constructor-chain route (({}).constructor.constructor) as well as the
// direct globals. Each function form is built through the still-live
// Function constructor inside a try block, so forms the engine cannot
// parse (there is no prototype to neuter for those) are skipped instead
// of aborting the prelude.
var hardenProgram = goja.MustCompile("harden.js", `
(function() {
	var deny = function() {
		throw new TypeError("code generation from strings is disabled");
	};
	var neuter = function(fn) {
		var proto = Object.getPrototypeOf(fn);
		if (!proto) { return; }
		Object.defineProperty(proto, "constructor", {
			value: deny,
			writable: false,
			configurable: false
		});
	};
	var forms = [
		"(function() {})",
		"(function*() {})",
		"(async function() {})",
		"(async function*() {})"
	];
	for (var i = 0; i < forms.length; i++) {
		var fn;
		try {
			fn = Function("return " + forms[i] + ";")();
		} catch (e) {
			continue;
		}
		neuter(fn);
	}
	globalThis.eval = deny;
	globalThis.Function = deny;
})();
`, false)

// timeoutSentinel is the interrupt value installed by the wall-clock
// guard, so interrupts are recognized without matching message text.
type timeoutSentinel struct {
	limit time.Duration
}

// ExecutionContext is the capability set visible to executing code: one
// fresh JavaScript runtime whose globals are the ECMAScript intrinsics
// plus the module allowlist behind require. Host globals (timers, process,
// filesystem, network) are absent because they are never installed; a new
// engine version introducing ambient capabilities therefore fails closed.
//
// One context is constructed per execution attempt and torn down
// unconditionally afterward.
type ExecutionContext struct {
	vm       *goja.Runtime
	resolver *moduleResolver
	timeout  time.Duration
	closed   bool
}

// newExecutionContext builds a hardened runtime with either real or
// stand-in allowlist bindings.
func newExecutionContext(reg *registry.ComponentRegistry, timeout time.Duration, standIns bool) (*ExecutionContext, error) {
	vm := goja.New()

	if _, err := vm.RunProgram(hardenProgram); err != nil {
		return nil, fmt.Errorf("hardening execution context: %w", err)
	}

	var (
		bindings map[string]goja.Value
		err      error
	)
	if standIns {
		bindings, err = buildStandInBindings(vm, reg)
	} else {
		bindings, err = buildRealBindings(vm, reg)
	}
	if err != nil {
		return nil, fmt.Errorf("building allowlist bindings: %w", err)
	}

	return &ExecutionContext{
		vm:       vm,
		resolver: newModuleResolver(vm, bindings),
		timeout:  timeout,
	}, nil
}

// Close tears the context down. The runtime holds no host resources, so
// teardown is clearing any pending interrupt and releasing the reference.
func (ec *ExecutionContext) Close() {
	if ec.closed {
		return
	}
	ec.closed = true
	ec.vm.ClearInterrupt()
}

// runModule evaluates compiled module code inside the context and returns
// its exports object. The module runs under the context's wall-clock
// guard; a run that exceeds it is forcibly terminated.
func (ec *ExecutionContext) runModule(ctx context.Context, code string) (*goja.Object, error) {
	wrapped := "(function(module, exports, require) {\n" + code + "\n})"
	prog, err := goja.Compile("template.js", wrapped, false)
	if err != nil {
		return nil, errors.NewExecutionError("compiled module is not executable", err)
	}

	var exportsObj *goja.Object
	guardErr := ec.guard(ctx, errors.PhaseExecution, func() error {
		fnVal, err := ec.vm.RunProgram(prog)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return fmt.Errorf("module wrapper did not evaluate to a function")
		}

		moduleObj := ec.vm.NewObject()
		exports := ec.vm.NewObject()
		if err := moduleObj.Set("exports", exports); err != nil {
			return err
		}

		if _, err := fn(goja.Undefined(), moduleObj, exports, ec.resolver.requireValue()); err != nil {
			return err
		}

		final := moduleObj.Get("exports")
		if final == nil || goja.IsUndefined(final) || goja.IsNull(final) {
			exportsObj = exports
			return nil
		}
		exportsObj = final.ToObject(ec.vm)

		return nil
	})
	if guardErr != nil {
		return nil, guardErr
	}

	// A disallowed import fails the run even when the template caught the
	// thrown rejection; swallowing it must not launder the attempt.
	if rejected := ec.resolver.rejection(); rejected != nil {
		return nil, rejected
	}

	return exportsObj, nil
}

// guard runs op under the context's wall-clock limit and maps engine
// failures to phase-tagged errors. The interrupt forcibly terminates the
// run and discards partial state; there is no partial-result path.
func (ec *ExecutionContext) guard(ctx context.Context, phase errors.Phase, op func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewExecutionTimeout("execution canceled before start: " + err.Error())
	}

	sentinel := &timeoutSentinel{limit: ec.timeout}
	timer := time.AfterFunc(ec.timeout, func() {
		ec.vm.Interrupt(sentinel)
	})
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ec.vm.Interrupt(sentinel)
		case <-watchDone:
		}
	}()

	err := op()

	timer.Stop()
	close(watchDone)
	ec.vm.ClearInterrupt()

	return ec.classify(phase, err)
}

// classify maps an engine-level failure to the pipeline taxonomy. The
// allowlist violation recorded by the resolver wins over the engine's own
// framing of the same failure, so rejected imports surface with the module
// name across every strategy.
func (ec *ExecutionContext) classify(phase errors.Phase, err error) error {
	if err == nil {
		return nil
	}

	if rejected := ec.resolver.rejection(); rejected != nil {
		return rejected
	}

	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		return errors.NewExecutionTimeout(fmt.Sprintf("execution timed out after %s", ec.timeout))
	}

	var exc *goja.Exception
	if stderrors.As(err, &exc) {
		message := "uncaught error: " + exc.Value().String()
		if phase == errors.PhaseRender {
			return errors.NewRenderError(message, err)
		}
		return errors.NewExecutionError(message, err)
	}

	if phase == errors.PhaseRender {
		return errors.NewRenderError(err.Error(), err)
	}

	return errors.NewExecutionError(err.Error(), err)
}

// ModuleExports is the export mapping produced by running one compiled
// module inside one execution context. It owns the context and must be
// closed by the pipeline invocation that created it.
type ModuleExports struct {
	ec      *ExecutionContext
	exports *goja.Object
}

// Object returns the raw exports object.
func (m *ModuleExports) Object() *goja.Object {
	return m.exports
}

// Runtime returns the owning JavaScript runtime, for value inspection.
func (m *ModuleExports) Runtime() *goja.Runtime {
	return m.ec.vm
}

// Component ties a callable found among the exports to the owning context.
func (m *ModuleExports) Component(fn goja.Callable) *ResolvedComponent {
	return &ResolvedComponent{ec: m.ec, fn: fn}
}

// Close tears down the owning execution context.
func (m *ModuleExports) Close() {
	m.ec.Close()
}

// ResolvedComponent is the callable selected from module exports to
// represent the template.
type ResolvedComponent struct {
	ec *ExecutionContext
	fn goja.Callable
}

// Runtime returns the owning JavaScript runtime.
func (c *ResolvedComponent) Runtime() *goja.Runtime {
	return c.ec.vm
}

// Call invokes a callable inside the owning runtime. It must run inside
// Guard so the wall-clock limit applies.
func (c *ResolvedComponent) Call(fn goja.Callable, args ...goja.Value) (goja.Value, error) {
	return fn(goja.Undefined(), args...)
}

// Invoke performs the zero-argument element construction of the resolved
// component: calling it with empty props.
func (c *ResolvedComponent) Invoke() (goja.Value, error) {
	return c.fn(goja.Undefined(), c.ec.vm.NewObject())
}

// Guard runs op under the context's wall-clock limit, classifying
// failures at the render phase. The renderer wraps its whole walk in one
// guard window so nested component invocations share the same limit.
func (c *ResolvedComponent) Guard(ctx context.Context, op func() error) error {
	return c.ec.guard(ctx, errors.PhaseRender, op)
}
