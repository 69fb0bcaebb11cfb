package psutil

import (
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
)

func TestIsAlive_SelfProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Error("IsAlive(self) = false, want true")
	}
}

func TestIsAlive_InvalidPID(t *testing.T) {
	if IsAlive(0) {
		t.Error("IsAlive(0) = true, want false")
	}
	if IsAlive(-1) {
		t.Error("IsAlive(-1) = true, want false")
	}
}

func TestIsAlive_DeadProcess(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("could not run helper process: %v", err)
	}
	if IsAlive(cmd.Process.Pid) {
		t.Error("IsAlive(exited process) = true, want false")
	}
}

func TestCmdline_Self(t *testing.T) {
	cmdline, err := Cmdline(os.Getpid())
	if err != nil {
		t.Skipf("cmdline unavailable on this platform: %v", err)
	}
	if cmdline == "" {
		t.Error("Cmdline(self) returned empty string")
	}
}

func TestCmdline_NonExistent(t *testing.T) {
	_, err := Cmdline(999999)
	if err == nil {
		t.Error("Cmdline(999999) expected error for non-existent process")
	}
}

func TestMatchesPattern(t *testing.T) {
	pattern := regexp.MustCompile(`psutil`)
	// The test binary's own cmdline should contain the package/test path.
	if !MatchesPattern(os.Getpid(), pattern) {
		t.Skip("test binary cmdline did not match; platform-dependent")
	}
}

func TestTerminate_NoSuchProcess(t *testing.T) {
	if err := Terminate(999999); err != nil {
		t.Errorf("Terminate(999999) = %v, want nil (ESRCH treated as success)", err)
	}
}

func TestParsePS_ColumnContract(t *testing.T) {
	out := []byte(strings.Join([]string{
		"USER   PID  %CPU %MEM    VSZ   RSS TTY      STAT START   TIME COMMAND",
		"root     1   0.0  0.0  10000  1000 ?        Ss   Jan01   0:00 /sbin/init",
		"agent  200   0.1  0.2  20000  2000 ?        S    Jan01   0:05 /usr/bin/claude-code --api",
		"user   201   0.0  0.0   5000   500 pts/0    R+   10:00   0:00 ps aux",
	}, "\n"))

	procs := parsePS(out, regexp.MustCompile(`claude-code`))
	if len(procs) != 1 {
		t.Fatalf("parsePS() = %d matches, want 1", len(procs))
	}
	if procs[0].PID != 200 {
		t.Errorf("parsePS() pid = %d, want 200", procs[0].PID)
	}
	if procs[0].Command != "/usr/bin/claude-code --api" {
		t.Errorf("parsePS() command = %q", procs[0].Command)
	}
}

func TestListPIDs(t *testing.T) {
	pids, err := ListPIDs()
	if err != nil {
		t.Skipf("/proc unavailable: %v", err)
	}
	found := false
	for _, pid := range pids {
		if pid == os.Getpid() {
			found = true
		}
	}
	if !found {
		t.Error("ListPIDs() did not include the current process")
	}
}
