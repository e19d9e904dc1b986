// Package registry enumerates the template-component library.
//
// The registry is the single source of truth for component names. Real
// sandbox bindings, validation stand-ins, and the WASM tier's enumerated
// stand-in list are all derived from it, so a component added here is
// automatically available in every strategy.
package registry

import "sort"

// ComponentInfo describes one component of the template-component library:
// the HTML tag it lowers to and the inline styles it applies by default.
type ComponentInfo struct {
	Name         string
	Tag          string
	Void         bool
	DefaultStyle map[string]string
}

// ComponentRegistry maps component names to their definitions.
type ComponentRegistry struct {
	components map[string]ComponentInfo
}

// NewComponentRegistry creates a registry preloaded with the built-in
// component set.
func NewComponentRegistry() *ComponentRegistry {
	r := &ComponentRegistry{components: make(map[string]ComponentInfo)}
	for _, c := range builtins {
		r.components[c.Name] = c
	}

	return r
}

// Get returns the component definition for name.
func (r *ComponentRegistry) Get(name string) (ComponentInfo, bool) {
	c, ok := r.components[name]
	return c, ok
}

// Names returns all registered component names in sorted order. The WASM
// validation tier uses this as its enumerated stand-in list.
func (r *ComponentRegistry) Names() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Count returns the number of registered components.
func (r *ComponentRegistry) Count() int {
	return len(r.components)
}

// builtins is the fixed component set of the template-component library.
// Tags and default styles follow common email-client constraints: layout
// via tables, typography via inline styles.
var builtins = []ComponentInfo{
	{Name: "Html", Tag: "html"},
	{Name: "Head", Tag: "head"},
	{Name: "Body", Tag: "body"},
	{Name: "Preview", Tag: "div", DefaultStyle: map[string]string{
		"display":  "none",
		"overflow": "hidden",
	}},
	{Name: "Container", Tag: "table", DefaultStyle: map[string]string{
		"width":  "100%",
		"border": "0",
	}},
	{Name: "Section", Tag: "table", DefaultStyle: map[string]string{
		"width": "100%",
	}},
	{Name: "Row", Tag: "tr"},
	{Name: "Column", Tag: "td"},
	{Name: "Heading", Tag: "h1"},
	{Name: "Text", Tag: "p", DefaultStyle: map[string]string{
		"fontSize":   "14px",
		"lineHeight": "24px",
	}},
	{Name: "Link", Tag: "a", DefaultStyle: map[string]string{
		"color":          "#067df7",
		"textDecoration": "none",
	}},
	{Name: "Button", Tag: "a", DefaultStyle: map[string]string{
		"display":        "inline-block",
		"textDecoration": "none",
	}},
	{Name: "Img", Tag: "img", Void: true},
	{Name: "Hr", Tag: "hr", Void: true},
}
