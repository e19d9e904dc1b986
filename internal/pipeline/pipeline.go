// Package pipeline compiles untrusted template source to HTML.
//
// A compilation is four stages run in order: validation, transpilation,
// sandboxed execution, and rendering. Each stage owns its failure mode;
// whatever error leaves Compile is a phase-tagged CompileError from the
// stage that first classified it.
package pipeline

import (
	"context"
	"time"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/extractor"
	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/registry"
	"github.com/conneroisu/crucible/internal/renderer"
	"github.com/conneroisu/crucible/internal/sandbox"
	"github.com/conneroisu/crucible/internal/transpiler"
	"github.com/conneroisu/crucible/internal/validation"
)

// Options configures pipeline construction.
type Options struct {
	// Strategy selects the sandbox tier. Empty means the default tier.
	Strategy sandbox.Kind

	// Timeout bounds each sandboxed run. Zero means the sandbox default.
	Timeout time.Duration

	// MemoryLimit caps phase-1 validation heaps in bytes.
	MemoryLimit int64

	// WorkerPath overrides the heap-isolated worker binary.
	WorkerPath string

	// Engine overrides the heap-isolated phase-1 transport, for tests.
	Engine sandbox.ValidationEngine

	// Registry overrides the template-component library.
	Registry *registry.ComponentRegistry

	Logger logging.Logger
}

// Pipeline turns template source into HTML documents. A Pipeline is
// immutable after construction and safe for concurrent use; each Compile
// call builds its own execution context.
type Pipeline struct {
	transpiler transpiler.Transpiler
	strategy   sandbox.Strategy
	renderer   *renderer.DocumentRenderer
	logger     logging.Logger
}

// New constructs a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscard()
	}

	kind := opts.Strategy
	if kind == "" {
		kind = sandbox.DefaultKind()
	}

	strategy, err := sandbox.New(kind, sandbox.Options{
		Timeout:     opts.Timeout,
		MemoryLimit: opts.MemoryLimit,
		WorkerPath:  opts.WorkerPath,
		Engine:      opts.Engine,
		Registry:    opts.Registry,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		transpiler: transpiler.New(),
		strategy:   strategy,
		renderer:   renderer.New(opts.Logger),
		logger:     opts.Logger.WithComponent("pipeline"),
	}, nil
}

// Strategy reports the sandbox tier this pipeline executes under.
func (p *Pipeline) Strategy() sandbox.Kind {
	return p.strategy.Kind()
}

// Compile runs the full pipeline on source and returns the rendered HTML
// document. On failure the returned error is always a *errors.CompileError
// tagged with the phase that failed.
func (p *Pipeline) Compile(ctx context.Context, source string) (string, error) {
	start := time.Now()

	doc := validation.NewSourceDocument(source)
	text, err := validation.Validate(doc)
	if err != nil {
		return "", errors.FromError(errors.PhaseValidation, err)
	}
	p.logger.Debug(ctx, "source validated", "bytes", doc.Length)

	module, err := p.transpiler.Transpile(text)
	if err != nil {
		return "", errors.FromError(errors.PhaseTranspile, err)
	}
	p.logger.Debug(ctx, "source transpiled", "code_bytes", len(module.Code))

	exports, err := p.strategy.Execute(ctx, module)
	if err != nil {
		return "", errors.FromError(errors.PhaseExecution, err)
	}
	defer exports.Close()

	component, err := extractor.Extract(exports)
	if err != nil {
		return "", errors.FromError(errors.PhaseExecution, err)
	}

	out, err := p.renderer.Render(ctx, component)
	if err != nil {
		return "", errors.FromError(errors.PhaseRender, err)
	}

	p.logger.Debug(ctx, "compilation finished",
		"strategy", string(p.strategy.Kind()),
		"duration", time.Since(start).String(),
		"html_bytes", len(out))

	return out, nil
}
