// Package security decides whether a command may be executed in the sandbox.
// Validation is pure: no state, no I/O, safe for concurrent use.
package security

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Verdict is the result of validating a command line.
// When Safe is false, Rule names the rule that fired and Reason explains it.
type Verdict struct {
	Safe   bool
	Rule   string
	Reason string
}

// Rule names carried in rejection verdicts.
const (
	RuleBlockedCommand   = "blocked_command"
	RuleDangerousPattern = "dangerous_pattern"
	RulePathTraversal    = "path_traversal"
)

// blockedCommands is the fixed denylist of system-destructive,
// privilege-escalating, networking, and shell-control-flow commands.
// Matching is case-insensitive on the bare command name.
var blockedCommands = map[string]struct{}{
	"sudo": {}, "su": {}, "doas": {},
	"rm": {}, "rmdir": {}, "dd": {}, "mkfs": {}, "fdisk": {}, "shred": {},
	"shutdown": {}, "reboot": {}, "halt": {}, "poweroff": {}, "init": {},
	"chmod": {}, "chown": {}, "chgrp": {}, "passwd": {}, "useradd": {}, "userdel": {},
	"mount": {}, "umount": {},
	"ssh": {}, "scp": {}, "sftp": {}, "telnet": {}, "nc": {}, "ncat": {},
	"iptables": {}, "ip6tables": {}, "nft": {},
	"kill": {}, "killall": {}, "pkill": {},
	"eval": {}, "exec": {}, "source": {},
	"crontab": {}, "systemctl": {}, "service": {},
}

// dangerousPatterns match destructive flag combinations and shell abuse in
// the joined command line. Compiled once; order defines precedence.
var dangerousPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"recursive force remove", regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`)},
	{"disk format", regexp.MustCompile(`(?i)\b(mkfs|format)\b`)},
	{"raw disk write", regexp.MustCompile(`(?i)\bdd\s+if=`)},
	{"world-writable chmod", regexp.MustCompile(`(?i)chmod\s+([-a-z]+\s+)?777\b`)},
	{"force kill", regexp.MustCompile(`(?i)kill\s+-9\b`)},
	{"service control", regexp.MustCompile(`(?i)\b(systemctl|service)\s+(stop|start|restart|disable|mask)\b`)},
	{"raw device redirect", regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|mem)`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{.*\}\s*;?\s*:`)},
	{"shell piped from network", regexp.MustCompile(`(?i)\b(curl|wget)\b.*\|\s*(ba)?sh\b`)},
	{"history clear", regexp.MustCompile(`(?i)\bhistory\s+-c\b`)},
}

// traversalSequences are matched as raw substrings of the lowercased command
// line, covering plain, URL-encoded, and double-encoded forms.
var traversalSequences = []string{
	"../",
	`..\`,
	"..%2f",
	"..%5c",
	"%2e%2e%2f",
	"%2e%2e%5c",
	"%2e%2e/",
	`%2e%2e\`,
	"%252e%252e%252f",
	"%252e%252e%255c",
}

// Validate decides whether command+args may run. First matching rule wins.
// allowUnsafe bypasses every check; the caller accepts full responsibility.
func Validate(command string, args []string, allowUnsafe bool) Verdict {
	if allowUnsafe {
		return Verdict{Safe: true}
	}

	name := strings.ToLower(strings.TrimSpace(command))
	if _, ok := blockedCommands[name]; ok {
		return Verdict{
			Rule:   RuleBlockedCommand,
			Reason: fmt.Sprintf("command %q is blocked", name),
		}
	}

	full := command
	if len(args) > 0 {
		full += " " + strings.Join(args, " ")
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(full) {
			return Verdict{
				Rule:   RuleDangerousPattern,
				Reason: fmt.Sprintf("command line matches dangerous pattern %q", p.name),
			}
		}
	}

	lowered := strings.ToLower(full)
	for _, seq := range traversalSequences {
		if strings.Contains(lowered, seq) {
			return Verdict{
				Rule:   RulePathTraversal,
				Reason: fmt.Sprintf("command line contains path traversal sequence %q", seq),
			}
		}
	}

	return Verdict{Safe: true}
}

// Blocked reports whether a bare command name is on the denylist.
// Exposed for status/introspection tooling.
func Blocked(command string) bool {
	_, ok := blockedCommands[strings.ToLower(strings.TrimSpace(command))]
	return ok
}

// BlockedCommands returns a sorted copy of the denylist for display
// purposes. The underlying set is never exposed.
func BlockedCommands() []string {
	out := make([]string, 0, len(blockedCommands))
	for name := range blockedCommands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
