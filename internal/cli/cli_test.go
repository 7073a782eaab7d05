package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// newHome points CONFIG_PATH at a missing file so tests run on defaults.
// Setenv forbids t.Parallel in callers.
func newHome(t *testing.T) string {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	return t.TempDir()
}

func runCLI(t *testing.T, home string, args ...string) string {
	t.Helper()
	root := NewRootCmd("test")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--home", home}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	if root == nil {
		t.Fatal("NewRootCmd returned nil")
	}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "job", "worker", "candidates", "train", "sweep", "seed"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestNewRootCmd_versionFlag(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("Version: got %q", root.Version)
	}
}

func TestNewRootCmd_hasHomeFlag(t *testing.T) {
	root := NewRootCmd("")
	if root.PersistentFlags().Lookup("home") == nil {
		t.Fatal("expected --home persistent flag")
	}
}

func TestWorkerAddAndList(t *testing.T) {
	home := newHome(t)

	out := runCLI(t, home, "worker", "add", "--name", "Marco", "--role", "tornero", "--skills", "torneado,roscado")
	if !strings.Contains(out, "Created worker 1") {
		t.Errorf("add output: %q", out)
	}

	out = runCLI(t, home, "worker", "list")
	if !strings.Contains(out, "Marco") || !strings.Contains(out, "tornero") {
		t.Errorf("list output: %q", out)
	}
}

func TestWorkerAddRejectsUnknownRole(t *testing.T) {
	home := newHome(t)

	root := NewRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--home", home, "worker", "add", "--name", "X", "--role", "gerente"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestJobLifecycle(t *testing.T) {
	home := newHome(t)

	runCLI(t, home, "worker", "add", "--name", "Marco", "--role", "tornero", "--skills", "torneado,roscado")

	out := runCLI(t, home, "job", "create",
		"--desc", "torneado de eje inox con roscado M10",
		"--priority", "HIGH",
		"--due", "2099-12-31")
	if !strings.Contains(out, "Created job 1") {
		t.Fatalf("create output: %q", out)
	}

	out = runCLI(t, home, "candidates", "--id", "1")
	if !strings.Contains(out, "Marco") {
		t.Errorf("candidates output: %q", out)
	}

	out = runCLI(t, home, "job", "assign", "--id", "1", "--worker", "1")
	if !strings.Contains(out, "Assigned job 1 to worker 1") {
		t.Errorf("assign output: %q", out)
	}

	for _, step := range []string{"start", "qa", "deliver"} {
		runCLI(t, home, "job", step, "--id", "1")
	}

	out = runCLI(t, home, "job", "show", "--id", "1")
	if !strings.Contains(out, "status=DELIVERED") {
		t.Errorf("show after deliver: %q", out)
	}
	if !strings.Contains(out, "paid=true") {
		t.Errorf("delivered job should be paid: %q", out)
	}
	if !strings.Contains(out, "Assignment history:") {
		t.Errorf("show should list assignment history: %q", out)
	}
}

func TestJobListEmpty(t *testing.T) {
	home := newHome(t)

	out := runCLI(t, home, "job", "list")
	if !strings.Contains(out, "No jobs") {
		t.Errorf("list output: %q", out)
	}
}

func TestSweepEmptyStore(t *testing.T) {
	home := newHome(t)

	out := runCLI(t, home, "sweep")
	if !strings.Contains(out, "Scanned 0 jobs") {
		t.Errorf("sweep output: %q", out)
	}
}

func TestTrainWithoutHistory(t *testing.T) {
	home := newHome(t)

	out := runCLI(t, home, "train")
	if !strings.Contains(out, "Not enough history") {
		t.Errorf("train output: %q", out)
	}
}

func TestStatusNotRunning(t *testing.T) {
	home := newHome(t)

	out := runCLI(t, home, "status")
	if !strings.Contains(out, "not running") {
		t.Errorf("status output: %q", out)
	}
}

func TestSeedLoadsDemoData(t *testing.T) {
	home := newHome(t)

	runCLI(t, home, "seed")
	out := runCLI(t, home, "worker", "list")
	if strings.Contains(out, "No active workers") {
		t.Errorf("seed should create workers: %q", out)
	}
}
