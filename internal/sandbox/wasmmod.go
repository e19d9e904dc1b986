package sandbox

// Synthetic WebAssembly module emission. The WASM-Validated strategy
// lowers a template's import surface to a minimal binary module: one
// imported function per required module name, and a _start body that
// calls each import once. Instantiating that module under the WASM
// runtime then makes the runtime's link step enforce the allowlist,
// because only the allowlisted names are registered as host modules.

const requireImportName = "require"

// wasm binary section IDs used by the emitter.
const (
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a
)

// synthesizeImportModule emits a valid WASM v1 binary whose imports are
// one nullary function per name, in the given order.
func synthesizeImportModule(names []string) []byte {
	mod := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic "\0asm"
		0x01, 0x00, 0x00, 0x00, // version 1
	}

	// Type section: a single () -> () function type.
	mod = appendSection(mod, sectionType, []byte{
		0x01,       // one type
		0x60, 0x00, // func, zero params
		0x00, // zero results
	})

	// Import section: each required module name becomes a module-level
	// function import of the shared type.
	if len(names) > 0 {
		var body []byte
		body = appendULEB128(body, uint64(len(names)))
		for _, name := range names {
			body = appendName(body, name)
			body = appendName(body, requireImportName)
			body = append(body, 0x00) // import kind: function
			body = appendULEB128(body, 0)
		}
		mod = appendSection(mod, sectionImport, body)
	}

	// Function section: one local function (_start) of the shared type.
	mod = appendSection(mod, sectionFunction, []byte{0x01, 0x00})

	// Memory section: one memory with a one-page minimum, so the
	// runtime's page limit has something to bound.
	mod = appendSection(mod, sectionMemory, []byte{0x01, 0x00, 0x01})

	// Export section: expose _start.
	{
		var body []byte
		body = appendULEB128(body, 1)
		body = appendName(body, "_start")
		body = append(body, 0x00) // export kind: function
		body = appendULEB128(body, uint64(len(names)))
		mod = appendSection(mod, sectionExport, body)
	}

	// Code section: the _start body calls each import in order.
	{
		var instrs []byte
		instrs = append(instrs, 0x00) // zero local declarations
		for i := range names {
			instrs = append(instrs, 0x10) // call
			instrs = appendULEB128(instrs, uint64(i))
		}
		instrs = append(instrs, 0x0b) // end

		var body []byte
		body = appendULEB128(body, 1)
		body = appendULEB128(body, uint64(len(instrs)))
		body = append(body, instrs...)
		mod = appendSection(mod, sectionCode, body)
	}

	return mod
}

func appendSection(mod []byte, id byte, body []byte) []byte {
	mod = append(mod, id)
	mod = appendULEB128(mod, uint64(len(body)))

	return append(mod, body...)
}

func appendName(dst []byte, name string) []byte {
	dst = appendULEB128(dst, uint64(len(name)))

	return append(dst, name...)
}

func appendULEB128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}
