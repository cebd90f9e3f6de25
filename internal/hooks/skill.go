package hooks

// SkillContent contains the SKILL.md file content for Skillet.
const SkillContent = `---
name: skillet
description: This skill provides sandboxed skill management via the Skillet pipeline. Use when installing skills, running them, inspecting capability grants, or auditing what a skill did.
---

# Skillet Skill Management

Install, run, and audit skills through the Skillet security pipeline.
Every skill runs under a capability grant fixed at install time; nothing
a skill does at runtime can widen it.

## Quick Reference

| Action | Command |
|--------|---------|
| Install a skill | ` + "`skillet install <manifest.json>`" + ` |
| Preview an install | ` + "`skillet plan <manifest.json>`" + ` |
| Run a skill | ` + "`skillet run <name> --input \"...\"`" + ` |
| Inspect grants | ` + "`skillet inspect <name>`" + ` |
| List installed | ` + "`skillet list`" + ` |
| Search skills | ` + "`skillet search \"query\"`" + ` |
| Revoke a capability | ` + "`skillet revoke <name> <capability>`" + ` |
| Change trust tier | ` + "`skillet trust <name> <tier>`" + ` |
| Audit trail | ` + "`skillet audit --skill <name@version>`" + ` |
| Uninstall | ` + "`skillet uninstall <name> <version>`" + ` |

## Trust Tiers

Every skill declares a trust tier that decides how it executes:

- **local**: Prompt-only skills. No bytecode, no sandbox; running one
  returns its prompt text for you to act on.
- **verified**: Bytecode runs in-process inside a fuel-metered wasm
  sandbox with a 64 MiB memory ceiling and a 30s deadline.
- **untrusted**: Bytecode runs in a separate OS-sandboxed child process
  (landlock on Linux, sandbox-exec on macOS) with tighter budgets:
  16 MiB and 10s. Denied capability checks terminate the invocation.

## Capabilities

Skills request capabilities in their manifest; the full set is closed:

` + "```" + `
read-file    write-file   http-get      http-post
exec-command read-env     recall-memory get-secret
` + "```" + `

The effective grant is the manifest's own capabilities plus anything
composed from parent skills via inherits, minus revocations. Inspect it:

` + "```bash" + `
skillet inspect web-summarizer       # Own, inherited, effective, revoked
skillet revoke web-summarizer http-post   # Narrow the grant permanently
` + "```" + `

Revocation is immediate: sessions already running the skill see the
narrowed grant on their next capability check.

## Installing Skills

` + "```bash" + `
skillet plan manifest.json           # Resolve deps, show install order
skillet install manifest.json        # Resolve, compose, approve, install
skillet install manifest.json --yes  # Skip the approval prompt
` + "```" + `

Installation resolves the dependency graph (cycles and conflicts abort),
composes inherited capabilities from parent skills, and shows the full
effective capability set for approval before anything is persisted.

## Auditing

Every capability check and every invocation lands in an append-only
audit trail that survives skill removal:

` + "```bash" + `
skillet audit --limit 20                 # Recent activity
skillet audit --skill web-summarizer@1.2.0
skillet audit --invocation <id>          # One invocation, all checks
skillet audit --denied                   # Only denials
` + "```" + `

## Agent Lifecycle (Hooks)

Skillet integrates with Claude Code hooks:
- **SessionStart**: List installed skills into session context
- **UserPromptSubmit**: Suggest skills matching the prompt
- **PostToolUse** (run_skill): Surface capability denials from the
  invocation that just finished

## MCP Daemon

` + "`skilletd`" + ` exposes the same pipeline over MCP stdio with tools
run_skill, inspect_skill, list_skills, search_skills,
revoke_capability, and audit_trail.
`
