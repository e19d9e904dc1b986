package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/conneroisu/crucible/internal/transpiler"
)

func TestScanRequires(t *testing.T) {
	code := `
var a = require("react");
var b = require('@react-email/components');
var c = require("react");
var d = require( "fs" );
var name = "net"; var e = require(name);
`
	names := scanRequires(code)

	assert.Equal(t, []string{"@react-email/components", "fs", "react"}, names)
}

func TestScanRequiresEmpty(t *testing.T) {
	assert.Empty(t, scanRequires(`module.exports = {};`))
}

// Mentions of require inside strings, comments, and regex literals are
// not imports; only live require calls count.
func TestScanRequiresIgnoresQuotedMentions(t *testing.T) {
	testCases := []struct {
		name string
		code string
		want []string
	}{
		{
			"string literal",
			`var s = 'require("fs")'; var a = require("react");`,
			[]string{"react"},
		},
		{
			"double-quoted string",
			`var s = "see require('net') docs";`,
			nil,
		},
		{
			"template literal",
			"var s = `require(\"fs\")`;",
			nil,
		},
		{
			"line comment",
			"// require(\"fs\")\nvar a = require(\"react\");",
			[]string{"react"},
		},
		{
			"block comment",
			`/* require("fs") */ var a = require('react');`,
			[]string{"react"},
		},
		{
			"regex literal",
			`var re = /require\("fs"\)/; var a = require("react");`,
			[]string{"react"},
		},
		{
			"member access",
			`shim.require("fs");`,
			nil,
		},
		{
			"division is not a regex",
			`var x = 1 / 2; var a = require("react");`,
			[]string{"react"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := scanRequires(tc.code)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSynthesizedModuleHeader(t *testing.T) {
	mod := synthesizeImportModule([]string{"react"})

	require.GreaterOrEqual(t, len(mod), 8)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, mod[:4])
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, mod[4:8])
}

// The emitted binary must be accepted by the runtime itself, with the
// feature set pinned the same way the strategy pins it.
func TestSynthesizedModuleCompiles(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(wazeroapi.CoreFeaturesV1))
	defer rt.Close(ctx)

	testCases := [][]string{
		nil,
		{"react"},
		{"react", "@react-email/components"},
		{"a", "b", "c", "d", "e"},
	}

	for _, names := range testCases {
		compiled, err := rt.CompileModule(ctx, synthesizeImportModule(names))
		require.NoError(t, err, "names=%v", names)

		imports := compiled.ImportedFunctions()
		assert.Len(t, imports, len(names))
		require.NoError(t, compiled.Close(ctx))
	}
}

func TestWASMValidatedAcceptsAllowlistedImports(t *testing.T) {
	s := NewWASMValidated(Options{}.withDefaults())

	err := s.validateImports(context.Background(), helloModule)
	assert.NoError(t, err)
}

func TestWASMValidatedRejectsByName(t *testing.T) {
	s := NewWASMValidated(Options{}.withDefaults())

	err := s.validateImports(context.Background(), disallowedImportModule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"fs"`)
}

// Dynamic require expressions are invisible to the pre-filter; the real
// execution phase rejects them instead.
func TestWASMValidatedDynamicRequireCaughtAtExecution(t *testing.T) {
	code := `
var name = "child_" + "process";
require(name);
module.exports = function Email() { return null; };
`
	s := NewWASMValidated(Options{}.withDefaults())

	require.NoError(t, s.validateImports(context.Background(), code))

	_, err := s.Execute(context.Background(), &transpiler.CompiledModule{Code: code})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"child_process"`)
}
