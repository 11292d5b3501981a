// Package watchtower runs user-requested commands under a deny-list
// sandbox: foreground with a hard deadline, background through a bounded
// registry with TTL garbage collection.
package watchtower

import (
	"errors"
	"regexp"
	"strings"
)

// Validation errors; the exec entry points never raise these, they fold
// them into the blocked-command result.
var (
	ErrEmptyCommand     = errors.New("empty command")
	ErrDangerousCommand = errors.New("dangerous command pattern detected")
	ErrPathEscape       = errors.New("command path outside allowed prefixes")
	ErrEnvBlocked       = errors.New("blocked environment override")
	ErrCapacityFull     = errors.New("capacity full")
	ErrNotFound         = errors.New("process not found")
)

// safePathPrefixes are the system locations a command path may start with;
// anything else must live inside the workspace.
var safePathPrefixes = []string{
	"/usr/", "/bin/", "/sbin/", "/etc/", "/tmp/", "/dev/", "/proc/", "/sys/", "/nix/",
}

// blockedEnvKeys may never be overridden by callers.
var blockedEnvKeys = map[string]bool{
	"LD_PRELOAD":            true,
	"LD_LIBRARY_PATH":       true,
	"DYLD_INSERT_LIBRARIES": true,
	"DYLD_LIBRARY_PATH":     true,
	"PATH":                  true,
}

// SafePath is the PATH forced onto every sandboxed process.
const SafePath = "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

// denyPatterns is the command deny list. Matching is case-insensitive over
// the raw command text.
var denyPatterns = []*regexp.Regexp{
	// Destructive filesystem operations.
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*(-[a-z]*[rf][a-z]*\s+)+.*(/|~|\*)`),
	regexp.MustCompile(`(?i)\brm\s+-rf\b`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+.*of=/dev/`),
	regexp.MustCompile(`(?i)>\s*/dev/(sd|hd|nvme|vd)`),
	regexp.MustCompile(`(?i)\bshred\s`),
	regexp.MustCompile(`(?i)\bwipefs\b`),
	// Fork bombs and resource exhaustion.
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`(?i)\bwhile\s+true.*do.*done\s*&`),
	regexp.MustCompile(`(?i)\byes\b.*\|\s*\S+\s*&$`),
	// Privilege escalation and system control.
	regexp.MustCompile(`(?i)\bsudo\s+(shutdown|reboot|halt|poweroff|init)\b`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`(?i)\bsystemctl\s+(stop|disable|mask)\b`),
	regexp.MustCompile(`(?i)\bkill\s+-9\s+1\b`),
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*[0-7]*7[0-7]*\s+/(etc|usr|bin|sbin)\b`),
	regexp.MustCompile(`(?i)\bchown\s+.*\s+/(etc|usr|bin|sbin)\b`),
	// Credential and key theft.
	regexp.MustCompile(`(?i)\bcat\s+.*(/etc/shadow|/etc/sudoers|id_rsa|\.ssh/)`),
	regexp.MustCompile(`(?i)(/etc/shadow|/etc/sudoers)\b`),
	regexp.MustCompile(`(?i)\bcurl\s+.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`(?i)\bwget\s+.*\|\s*(ba)?sh\b`),
	// Injection primitives.
	regexp.MustCompile("\\$\\("),
	regexp.MustCompile("`"),
	regexp.MustCompile(`(?i)\beval\s`),
	regexp.MustCompile(`(?i)\bexec\s+\d*<>`),
	// Loader hijacks inside command text.
	regexp.MustCompile(`(?i)\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`(?i)\bLD_LIBRARY_PATH\s*=`),
	regexp.MustCompile(`(?i)\bDYLD_\w+\s*=`),
	// Network backdoors.
	regexp.MustCompile(`(?i)\bnc\s+(-[a-z]*\s+)*-[a-z]*l`),
	regexp.MustCompile(`(?i)\bncat\s+.*--exec`),
	regexp.MustCompile(`(?i)/dev/tcp/`),
	// History and audit tampering.
	regexp.MustCompile(`(?i)\bhistory\s+-c\b`),
	regexp.MustCompile(`(?i)>\s*/var/log/`),
	// Package-manager and kernel surface.
	regexp.MustCompile(`(?i)\b(apt|apt-get|yum|dnf|pacman)\s+(remove|purge|erase)\b`),
	regexp.MustCompile(`(?i)\binsmod\b|\brmmod\b|\bmodprobe\b`),
	regexp.MustCompile(`(?i)\bsysctl\s+-w\b`),
	regexp.MustCompile(`(?i)\bmount\s+.*\s+/(etc|usr|bin)\b`),
	regexp.MustCompile(`(?i)\biptables\s+(-F|--flush)`),
}

// validateCommand runs the full input validation: emptiness, deny list,
// and the path allowlist for absolute command paths.
func validateCommand(command, workspaceRoot string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return ErrEmptyCommand
	}
	for _, p := range denyPatterns {
		if p.MatchString(command) {
			return ErrDangerousCommand
		}
	}
	return validateCommandPath(trimmed, workspaceRoot)
}

// validateCommandPath rejects absolute program paths outside both the safe
// system prefixes and the workspace.
func validateCommandPath(command, workspaceRoot string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}
	prog := fields[0]
	if !strings.HasPrefix(prog, "/") {
		return nil
	}
	for _, prefix := range safePathPrefixes {
		if strings.HasPrefix(prog, prefix) {
			return nil
		}
	}
	if workspaceRoot != "" && strings.HasPrefix(prog, strings.TrimSuffix(workspaceRoot, "/")+"/") {
		return nil
	}
	return ErrPathEscape
}

// validateEnv rejects loader and PATH overrides.
func validateEnv(env map[string]string) error {
	for key := range env {
		if blockedEnvKeys[strings.ToUpper(key)] {
			return ErrEnvBlocked
		}
	}
	return nil
}

// buildEnv merges caller env over a minimal base and forces the safe PATH.
func buildEnv(env map[string]string) []string {
	out := make([]string, 0, len(env)+1)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	out = append(out, "PATH="+SafePath)
	return out
}
