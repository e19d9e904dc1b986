package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/sandbox"
	"github.com/conneroisu/crucible/internal/validation"
)

const helloTemplate = `
import { Html, Body, Container, Text } from "@react-email/components";

export default function Email() {
	return (
		<Html>
			<Body>
				<Container>
					<Text>Hello World</Text>
				</Container>
			</Body>
		</Html>
	);
}
`

var allKinds = []sandbox.Kind{
	sandbox.StrategyPermissive,
	sandbox.StrategyHeapIsolated,
	sandbox.StrategyWASMValidated,
}

// newTestPipeline builds a pipeline whose heap-isolated phase 1 runs
// inside the test binary instead of a subprocess.
func newTestPipeline(t *testing.T, kind sandbox.Kind, timeout time.Duration) *Pipeline {
	t.Helper()

	p, err := New(Options{
		Strategy: kind,
		Timeout:  timeout,
		Engine:   sandbox.NewInProcessValidator(nil, timeout),
	})
	require.NoError(t, err)

	return p
}

func TestCompileHelloWorld(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 0)

			out, err := p.Compile(context.Background(), helloTemplate)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"), "got: %s", out)
			assert.Contains(t, out, "Hello World")
			assert.Contains(t, out, "<body>")
		})
	}
}

func TestCompileEmptySource(t *testing.T) {
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 0)

			for _, source := range []string{"", "   \n\t  "} {
				_, err := p.Compile(context.Background(), source)
				require.Error(t, err)
				assert.Equal(t, errors.PhaseValidation, errors.PhaseOf(err))
			}
		})
	}
}

func TestCompileOversizedSource(t *testing.T) {
	source := strings.Repeat("a", validation.MaxSourceBytes+1)

	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 0)

			_, err := p.Compile(context.Background(), source)
			require.Error(t, err)
			assert.Equal(t, errors.PhaseValidation, errors.PhaseOf(err))
			assert.Contains(t, err.Error(), "exceeds")
		})
	}
}

func TestCompileSyntaxError(t *testing.T) {
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	_, err := p.Compile(context.Background(), `export default () => <div>`)
	require.Error(t, err)
	assert.Equal(t, errors.PhaseTranspile, errors.PhaseOf(err))
}

func TestCompileDisallowedImport(t *testing.T) {
	source := `
import fs from "fs";
export default function Email() { return <p>{fs.toString()}</p>; }
`
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 0)

			_, err := p.Compile(context.Background(), source)
			require.Error(t, err)
			assert.Equal(t, errors.PhaseExecution, errors.PhaseOf(err))
			assert.Contains(t, err.Error(), `"fs"`)
		})
	}
}

// The transpiler drops imports the template never uses, so an unused
// disallowed import never turns into a require call and the template
// compiles. Only code that actually reaches for the module fails.
func TestCompileUnusedDisallowedImportIsElided(t *testing.T) {
	source := `
import fs from "fs";
export default function Email() { return <p>ok</p>; }
`
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 0)

			out, err := p.Compile(context.Background(), source)
			require.NoError(t, err)
			assert.Contains(t, out, "ok")
		})
	}
}

func TestCompileMissingComponentExport(t *testing.T) {
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	_, err := p.Compile(context.Background(), `export default { subject: "hi" };`)
	require.Error(t, err)
	assert.Equal(t, errors.PhaseExecution, errors.PhaseOf(err))
	assert.Contains(t, err.Error(), "export a component function")
}

func TestCompileThrowDuringExecution(t *testing.T) {
	source := `
throw new Error("module init failed");
export default function Email() { return <p>x</p>; }
`
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	_, err := p.Compile(context.Background(), source)
	require.Error(t, err)
	assert.Equal(t, errors.PhaseExecution, errors.PhaseOf(err))
	assert.Contains(t, err.Error(), "module init failed")
}

// A template that splices an element into its own children produces a
// cyclic tree; compilation must fail with a render error instead of
// crashing the process on unbounded recursion.
func TestCompileCyclicElementTree(t *testing.T) {
	source := `
const el = <div></div>;
el.children.push(el);
export default function Email() { return el; }
`
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	_, err := p.Compile(context.Background(), source)
	require.Error(t, err)
	assert.Equal(t, errors.PhaseRender, errors.PhaseOf(err))
	assert.Contains(t, err.Error(), "nesting")
}

func TestCompileRenderFailure(t *testing.T) {
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	_, err := p.Compile(context.Background(), `
export default function Email() { throw new Error("no greeting configured"); }
`)
	require.Error(t, err)
	assert.Equal(t, errors.PhaseRender, errors.PhaseOf(err))
}

func TestCompileTimeout(t *testing.T) {
	source := `
while (true) {}
export default function Email() { return <p>x</p>; }
`
	for _, kind := range allKinds {
		t.Run(string(kind), func(t *testing.T) {
			p := newTestPipeline(t, kind, 100*time.Millisecond)

			_, err := p.Compile(context.Background(), source)
			require.Error(t, err)
			assert.True(t, errors.IsTimeout(err), "expected timeout, got: %v", err)
			assert.Equal(t, errors.PhaseExecution, errors.PhaseOf(err))
		})
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	first, err := p.Compile(context.Background(), helloTemplate)
	require.NoError(t, err)
	second, err := p.Compile(context.Background(), helloTemplate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// Strategy choice affects containment, never output: the same source
// compiles to byte-identical documents under every tier.
func TestCompileCrossStrategyEquivalence(t *testing.T) {
	sources := []string{
		helloTemplate,
		`export default () => <p>plain</p>;`,
		`
import { Button } from "@react-email/components";
export default function Email() { return <Button href="https://example.com">Go</Button>; }
`,
	}

	for _, source := range sources {
		var outputs []string
		for _, kind := range allKinds {
			p := newTestPipeline(t, kind, 0)
			out, err := p.Compile(context.Background(), source)
			require.NoError(t, err, "strategy %s", kind)
			outputs = append(outputs, out)
		}

		assert.Equal(t, outputs[0], outputs[1])
		assert.Equal(t, outputs[1], outputs[2])
	}
}

// Every failure that leaves Compile is a phase-tagged CompileError.
func TestCompileErrorsAreAlwaysTagged(t *testing.T) {
	failingSources := []string{
		"",
		`export default () => <div>`,
		`import net from "net"; export default () => <p>{net.isIP("::1")}</p>;`,
		`export default { subject: "no component" };`,
		`export default function Email() { return { invalid: true }; }`,
	}

	p := newTestPipeline(t, sandbox.StrategyHeapIsolated, 0)
	for _, source := range failingSources {
		_, err := p.Compile(context.Background(), source)
		require.Error(t, err)

		var ce *errors.CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, errors.DefaultFormat, ce.Format)
		assert.NotEmpty(t, ce.Phase)
		assert.NotEqual(t, errors.PhaseCompile, ce.Phase)
	}
}

func TestCompileCanceledContext(t *testing.T) {
	p := newTestPipeline(t, sandbox.StrategyPermissive, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Compile(ctx, helloTemplate)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
}
