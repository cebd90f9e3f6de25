package hooks

import (
	_ "embed"
)

// Hook script templates embedded in the binary.
// These are installed to ~/.claude/hooks/skillet/ via the hooks install
// command.

//go:embed scripts/session_start.sh
var SessionStartScript string

//go:embed scripts/user_prompt.sh
var UserPromptScript string

//go:embed scripts/audit_check.sh
var AuditCheckScript string

// ScriptNames maps script identifiers to their filenames.
var ScriptNames = map[string]string{
	"session_start": "session_start.sh",
	"user_prompt":   "user_prompt.sh",
	"audit_check":   "audit_check.sh",
}

// GetScript returns the embedded script content by name.
func GetScript(name string) string {
	switch name {
	case "session_start":
		return SessionStartScript
	case "user_prompt":
		return UserPromptScript
	case "audit_check":
		return AuditCheckScript
	default:
		return ""
	}
}

// AllScripts returns all scripts as name -> content map.
func AllScripts() map[string]string {
	return map[string]string{
		"session_start": SessionStartScript,
		"user_prompt":   UserPromptScript,
		"audit_check":   AuditCheckScript,
	}
}
