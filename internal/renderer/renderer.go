// Package renderer converts an executed template's element tree to an HTML
// document.
//
// Rendering happens inside the sandbox's guard window: component functions
// encountered during the walk are invoked in the owning runtime, so a
// component that loops forever during render is terminated by the same
// wall-clock limit as execution. All text and attribute values are escaped;
// templates cannot emit raw markup.
package renderer

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/sandbox"
)

// maxRenderDepth bounds every recursive step of the walk, not just
// component invocation. Children arrays are template-mutable, so a
// template can splice an element into its own subtree; the depth cap is
// what turns that cycle into an error instead of unbounded Go recursion.
const maxRenderDepth = 256

// voidTags never render a closing tag and never render children.
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// skippedProps are element props that never become HTML attributes.
var skippedProps = map[string]bool{
	"children": true,
	"key":      true,
	"ref":      true,
	"style":    true,
}

// attributeAliases maps element-model prop names to their HTML attribute
// names.
var attributeAliases = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

// DocumentRenderer renders resolved components to HTML documents.
type DocumentRenderer struct {
	logger logging.Logger
}

// New creates a document renderer.
func New(logger logging.Logger) *DocumentRenderer {
	if logger == nil {
		logger = logging.NewDiscard()
	}

	return &DocumentRenderer{logger: logger.WithComponent("renderer")}
}

// Render invokes the component with empty props and walks the resulting
// element tree into an HTML string. A document whose root element is html
// gets a doctype preamble.
func (r *DocumentRenderer) Render(ctx context.Context, comp *sandbox.ResolvedComponent) (string, error) {
	var out string

	err := comp.Guard(ctx, func() error {
		root, err := comp.Invoke()
		if err != nil {
			return err
		}

		var sb strings.Builder
		w := &treeWalker{vm: comp.Runtime(), comp: comp}
		if err := w.walk(&sb, root, 0); err != nil {
			return err
		}

		out = sb.String()
		if w.rootTag == "html" {
			out = "<!DOCTYPE html>" + out
		}

		return nil
	})
	if err != nil {
		return "", errors.FromError(errors.PhaseRender, err)
	}

	r.logger.Debug(ctx, "rendered document", "bytes", len(out))

	return out, nil
}

// treeWalker carries per-render state through the recursive walk.
type treeWalker struct {
	vm      *goja.Runtime
	comp    *sandbox.ResolvedComponent
	rootTag string
	sawRoot bool
}

func (w *treeWalker) walk(sb *strings.Builder, v goja.Value, depth int) error {
	if depth > maxRenderDepth {
		return fmt.Errorf("element tree nesting exceeds %d levels", maxRenderDepth)
	}

	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		// Primitives: booleans render nothing, everything else renders as
		// escaped text.
		switch v.Export().(type) {
		case bool:
			return nil
		default:
			sb.WriteString(html.EscapeString(v.String()))
			return nil
		}
	}

	if obj.ClassName() == "Array" {
		length := obj.Get("length").ToInteger()
		for i := int64(0); i < length; i++ {
			if err := w.walk(sb, obj.Get(fmt.Sprintf("%d", i)), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	marker := obj.Get("$$typeof")
	if marker == nil || marker.String() != sandbox.ElementMarker {
		return fmt.Errorf("cannot render value of type %s: templates must return elements, strings, numbers, or arrays of those", obj.ClassName())
	}

	return w.walkElement(sb, obj, depth)
}

func (w *treeWalker) walkElement(sb *strings.Builder, el *goja.Object, depth int) error {
	typ := el.Get("type")
	props := el.Get("props")
	children := el.Get("children")

	// A function type is a component: invoke it with props (children
	// merged in) and walk its output.
	if fn, ok := goja.AssertFunction(typ); ok {
		callProps := w.vm.NewObject()
		if props != nil && !goja.IsUndefined(props) && !goja.IsNull(props) {
			src := props.ToObject(w.vm)
			for _, key := range src.Keys() {
				_ = callProps.Set(key, src.Get(key))
			}
		}
		if children != nil && !goja.IsUndefined(children) && !goja.IsNull(children) {
			_ = callProps.Set("children", children)
		}

		result, err := w.comp.Call(fn, callProps)
		if err != nil {
			return err
		}

		return w.walk(sb, result, depth+1)
	}

	tag := typ.String()

	if tag == sandbox.FragmentMarker {
		return w.walk(sb, children, depth+1)
	}

	if !w.sawRoot {
		w.sawRoot = true
		w.rootTag = tag
	}

	sb.WriteByte('<')
	sb.WriteString(tag)
	if err := w.writeAttributes(sb, props); err != nil {
		return err
	}

	if voidTags[tag] {
		sb.WriteString("/>")
		return nil
	}
	sb.WriteByte('>')

	if err := w.walk(sb, children, depth+1); err != nil {
		return err
	}

	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteByte('>')

	return nil
}

func (w *treeWalker) writeAttributes(sb *strings.Builder, props goja.Value) error {
	if props == nil || goja.IsUndefined(props) || goja.IsNull(props) {
		return nil
	}
	obj := props.ToObject(w.vm)

	for _, key := range obj.Keys() {
		if skippedProps[key] {
			continue
		}

		value := obj.Get(key)
		if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
			continue
		}
		if _, isFn := goja.AssertFunction(value); isFn {
			continue
		}

		name := key
		if alias, ok := attributeAliases[key]; ok {
			name = alias
		}

		sb.WriteByte(' ')
		sb.WriteString(name)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(value.String()))
		sb.WriteByte('"')
	}

	if style := obj.Get("style"); style != nil && !goja.IsUndefined(style) && !goja.IsNull(style) {
		css := w.inlineStyle(style)
		if css != "" {
			sb.WriteString(` style="`)
			sb.WriteString(html.EscapeString(css))
			sb.WriteByte('"')
		}
	}

	return nil
}

// inlineStyle flattens a style object into a CSS declaration list.
// camelCase property names are kebab-cased; keys are emitted in sorted
// order so output is byte-deterministic.
func (w *treeWalker) inlineStyle(style goja.Value) string {
	obj, ok := style.(*goja.Object)
	if !ok {
		return style.String()
	}

	keys := obj.Keys()
	sort.Strings(keys)

	var decls []string
	for _, key := range keys {
		value := obj.Get(key)
		if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
			continue
		}
		decls = append(decls, kebabCase(key)+":"+value.String())
	}

	return strings.Join(decls, ";")
}

func kebabCase(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte('-')
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}
