package hooks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInstallHooks verifies the core hooks are added to settings.
func TestInstallHooks(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	InstallHooks(settings)

	sessionEntries, ok := settings.Hooks["SessionStart"]
	require.True(t, ok, "SessionStart should be present")
	require.Len(t, sessionEntries, 1)
	require.Contains(t, sessionEntries[0].Hooks[0].Command,
		"session_start.sh",
	)

	promptEntries, ok := settings.Hooks["UserPromptSubmit"]
	require.True(t, ok, "UserPromptSubmit should be present")
	require.Len(t, promptEntries, 1)
	require.Contains(t, promptEntries[0].Hooks[0].Command,
		"user_prompt.sh",
	)
	require.Equal(t, 10, promptEntries[0].Hooks[0].Timeout)
}

// TestInstallHooksIdempotent verifies double-install is safe.
func TestInstallHooksIdempotent(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	InstallHooks(settings)
	InstallHooks(settings)

	// Should still have exactly one entry per event.
	require.Len(t, settings.Hooks["SessionStart"], 1)
	require.Len(t, settings.Hooks["UserPromptSubmit"], 1)
}

// TestInstallHooksPreservesExisting verifies existing hooks are kept.
func TestInstallHooksPreservesExisting(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: map[string][]HookEntry{
			"SessionStart": {
				{
					Matcher: "",
					Hooks: []HookCommand{{
						Type:    "command",
						Command: "/custom/hook.sh",
					}},
				},
			},
		},
	}

	InstallHooks(settings)

	// Should have both: existing + skillet hook.
	entries := settings.Hooks["SessionStart"]
	require.Len(t, entries, 2)
	require.Equal(t, "/custom/hook.sh", entries[0].Hooks[0].Command)
	require.Contains(t, entries[1].Hooks[0].Command, "session_start.sh")
}

// TestUninstallHooks verifies hooks are removed and empty events pruned.
func TestUninstallHooks(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	InstallHooks(settings)
	require.True(t, IsInstalled(settings))

	UninstallHooks(settings)
	require.False(t, IsInstalled(settings))

	_, hasSession := settings.Hooks["SessionStart"]
	_, hasPrompt := settings.Hooks["UserPromptSubmit"]
	require.False(t, hasSession, "SessionStart should be removed")
	require.False(t, hasPrompt, "UserPromptSubmit should be removed")
}

// TestUninstallHooksPreservesOthers verifies non-skillet hooks survive.
func TestUninstallHooksPreservesOthers(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: map[string][]HookEntry{
			"SessionStart": {
				{
					Matcher: "",
					Hooks: []HookCommand{{
						Type:    "command",
						Command: "/custom/hook.sh",
					}},
				},
			},
		},
	}

	InstallHooks(settings)
	require.Len(t, settings.Hooks["SessionStart"], 2)

	UninstallHooks(settings)

	entries := settings.Hooks["SessionStart"]
	require.Len(t, entries, 1)
	require.Equal(t, "/custom/hook.sh", entries[0].Hooks[0].Command)
}

// TestInstallAuditHooks verifies the audit surfacing hook definition.
func TestInstallAuditHooks(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	require.False(t, IsAuditHooksInstalled(settings))

	InstallAuditHooks(settings)
	require.True(t, IsAuditHooksInstalled(settings))

	entries := settings.Hooks["PostToolUse"]
	require.Len(t, entries, 1)
	require.Equal(t, "mcp__skillet__run_skill", entries[0].Matcher)
	require.Contains(t, entries[0].Hooks[0].Command, "audit_check.sh")

	UninstallAuditHooks(settings)
	require.False(t, IsAuditHooksInstalled(settings))
}

// TestCoreAndAuditHooksCoexist verifies both hook groups can be
// installed and removed independently.
func TestCoreAndAuditHooksCoexist(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	InstallHooks(settings)
	InstallAuditHooks(settings)

	require.True(t, IsInstalled(settings))
	require.True(t, IsAuditHooksInstalled(settings))

	UninstallAuditHooks(settings)
	require.False(t, IsAuditHooksInstalled(settings))
	require.True(t, IsInstalled(settings))
}

// TestSettingsRoundTrip verifies save then load preserves hooks and
// unrelated settings keys.
func TestSettingsRoundTrip(t *testing.T) {
	claudeDir := filepath.Join(t.TempDir(), ".claude")

	settings, err := LoadSettings(claudeDir)
	require.NoError(t, err)

	settings.rawData["model"] = "opus"
	InstallHooks(settings)

	require.NoError(t, SaveSettings(claudeDir, settings))

	loaded, err := LoadSettings(claudeDir)
	require.NoError(t, err)
	require.True(t, IsInstalled(loaded))
	require.Equal(t, "opus", loaded.rawData["model"])

	// Timeout survives the float64 round trip through JSON.
	entries := loaded.Hooks["UserPromptSubmit"]
	require.Len(t, entries, 1)
	require.Equal(t, 10, entries[0].Hooks[0].Timeout)
}

// TestGetInstalledHookEvents verifies event reporting.
func TestGetInstalledHookEvents(t *testing.T) {
	settings := &ClaudeSettings{
		Hooks: make(map[string][]HookEntry),
	}

	require.Empty(t, GetInstalledHookEvents(settings))

	InstallHooks(settings)
	events := GetInstalledHookEvents(settings)
	require.ElementsMatch(
		t, []string{"SessionStart", "UserPromptSubmit"}, events,
	)
}

// TestEmbeddedScripts verifies every declared script has embedded
// content and a filename.
func TestEmbeddedScripts(t *testing.T) {
	all := AllScripts()
	require.Len(t, all, len(ScriptNames))

	for name, content := range all {
		require.NotEmpty(t, content, "script %s is empty", name)
		require.NotEmpty(t, ScriptNames[name])
		require.Equal(t, content, GetScript(name))
	}

	require.Empty(t, GetScript("no-such-script"))
}
