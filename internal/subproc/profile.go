package subproc

import (
	"fmt"
	"strings"
)

// sandboxProfile renders a deny-by-default macOS sandbox-exec profile for
// one invocation. Only the binary itself, the module file, and the granted
// path prefixes are reachable; everything else is denied by the first
// rule. Kept platform-independent so the policy text is testable anywhere.
func sandboxProfile(exe string, req *Request) string {
	var b strings.Builder

	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")

	// Minimal process bootstrap: the re-executed binary, dyld's shared
	// cache, and basic metadata stats.
	fmt.Fprintf(&b, "(allow process-exec (literal %s))\n",
		profileQuote(exe))
	fmt.Fprintf(&b, "(allow file-read* (literal %s))\n",
		profileQuote(exe))
	b.WriteString("(allow file-read* (subpath \"/usr/lib\"))\n")
	b.WriteString("(allow file-read* " +
		"(subpath \"/System/Library\"))\n")
	b.WriteString("(allow file-read-metadata)\n")
	b.WriteString("(allow sysctl-read)\n")

	fmt.Fprintf(&b, "(allow file-read* (literal %s))\n",
		profileQuote(req.WasmPath))

	for _, path := range req.ReadablePaths {
		fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n",
			profileQuote(path))
	}
	for _, path := range req.WritablePaths {
		fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n",
			profileQuote(path))
		fmt.Fprintf(&b, "(allow file-write* (subpath %s))\n",
			profileQuote(path))
	}

	if req.AllowNetwork {
		b.WriteString("(allow network-outbound)\n")
		b.WriteString("(allow system-socket)\n")
	}

	return b.String()
}

// profileQuote renders a path as a sandbox profile string literal,
// escaping backslashes and double quotes.
func profileQuote(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)

	return `"` + escaped + `"`
}
