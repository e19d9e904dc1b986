// Package transpiler converts TSX-flavoured template source into an
// executable CommonJS module.
//
// The transpiler is a boundary around esbuild's Transform API: source text
// with type annotations and markup expressions goes in, module code with an
// explicit require binding point and a module.exports sink comes out. On
// malformed syntax the first esbuild diagnostic surfaces verbatim as a
// transpile-phase error.
package transpiler

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/crucible/internal/errors"
)

// CompiledModule is executable module code derived deterministically from
// one source document. It is never persisted or reused across invocations.
type CompiledModule struct {
	Code string
}

// Transpiler converts source text into a CompiledModule or reports a
// syntax diagnostic.
type Transpiler interface {
	Transpile(source string) (*CompiledModule, error)
}

// factoryBanner binds the classic JSX factory for templates that use
// markup without importing the base runtime themselves. Templates that do
// import it get renamed bindings from esbuild, so the two never collide.
const factoryBanner = `var React = require("react");`

// ESBuildTranspiler implements Transpiler over esbuild.
type ESBuildTranspiler struct {
	target api.Target
}

// New creates a transpiler targeting the language level the sandbox
// engines support.
func New() *ESBuildTranspiler {
	return &ESBuildTranspiler{target: api.ES2017}
}

// Transpile lowers TSX to CommonJS with the classic JSX factory, so markup
// expressions become React.createElement calls resolvable through the
// sandbox allowlist.
func (t *ESBuildTranspiler) Transpile(source string) (*CompiledModule, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:    api.LoaderTSX,
		Format:    api.FormatCommonJS,
		Target:    t.target,
		JSX:       api.JSXTransform,
		Banner:    factoryBanner,
		Sourcemap: api.SourceMapNone,
		LogLevel:  api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, errors.NewTranspileError(formatDiagnostic(result.Errors[0]))
	}

	return &CompiledModule{Code: string(result.Code)}, nil
}

// formatDiagnostic renders an esbuild message with its location when one is
// present, keeping the diagnostic text itself untouched.
func formatDiagnostic(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}

	return fmt.Sprintf("%s (line %d, column %d)", msg.Text, msg.Location.Line, msg.Location.Column)
}
