package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/engine"
	"github.com/w3bsuki/strike-ab/internal/ledger"
	"github.com/w3bsuki/strike-ab/internal/logging"
	"github.com/w3bsuki/strike-ab/internal/store"
	"github.com/w3bsuki/strike-ab/internal/testutil"
)

const definition = `
id: checkout-cta
name: Checkout CTA copy
variants:
  - id: control
    name: Buy now
    weight: 50
  - id: urgent
    name: Only 2 left
    weight: 50
    config:
      label: "Only 2 left!"
targeting:
  trafficPercentage: 100
metrics:
  primary: purchase
`

type testEnv struct {
	dir    string
	dbPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	return &testEnv{dir: dir, dbPath: filepath.Join(dir, "ab.db")}
}

func (e *testEnv) run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", e.dbPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(args...)
	if err != nil {
		t.Fatalf("%v: unexpected error: %v\n%s", args, err, out)
	}
	return out
}

func (e *testEnv) writeDefinition(t *testing.T) string {
	t.Helper()
	path := filepath.Join(e.dir, "checkout-cta.yaml")
	if err := os.WriteFile(path, []byte(definition), 0o644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}
	return path
}

func assertContains(t *testing.T, output string, expected ...string) {
	t.Helper()
	for _, s := range expected {
		if !strings.Contains(output, s) {
			t.Errorf("output missing expected content: %s\n\nGot:\n%s", s, output)
		}
	}
}

func TestCreateAndList(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun(t, "list")
	assertContains(t, out, "No experiments yet.")

	out = env.mustRun(t, "create", "-f", env.writeDefinition(t))
	assertContains(t, out,
		"Created experiment 'checkout-cta' with 2 variants:",
		"control: Buy now (weight 50)",
		"urgent: Only 2 left (weight 50)",
	)

	out = env.mustRun(t, "list")
	assertContains(t, out, "ID", "checkout-cta", "Checkout CTA copy", "DRAFT")

	out = env.mustRun(t, "list", "--status", "running")
	if strings.Contains(out, "checkout-cta") {
		t.Errorf("draft experiment listed under --status running:\n%s", out)
	}

	if _, err := env.run("list", "--status", "archived"); err == nil {
		t.Error("expected error for unknown status")
	}

	if _, err := env.run("create", "-f", env.writeDefinition(t)); err == nil {
		t.Error("expected error creating a duplicate experiment")
	}
}

func TestCreate_InvalidDefinition(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("name: no variants\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := env.run("create", "-f", path)
	if err == nil || !strings.Contains(err.Error(), "invalid experiment definition") {
		t.Errorf("expected invalid definition error, got %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "-f", env.writeDefinition(t))

	assertContains(t, env.mustRun(t, "activate", "checkout-cta"), "is now running")
	assertContains(t, env.mustRun(t, "pause", "checkout-cta"), "is now paused")
	assertContains(t, env.mustRun(t, "resume", "checkout-cta"), "is now running")
	assertContains(t, env.mustRun(t, "complete", "checkout-cta", "--yes"), "is now completed", "strike-ab results checkout-cta")

	_, err := env.run("activate", "checkout-cta")
	if err == nil || !strings.Contains(err.Error(), "invalid state transition") {
		t.Errorf("expected invalid state transition, got %v", err)
	}

	_, err = env.run("pause", "missing")
	if err == nil || !strings.Contains(err.Error(), "experiment 'missing' not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestAssignAndConvert(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "-f", env.writeDefinition(t), "--activate")

	first := env.mustRun(t, "assign", "checkout-cta", "--user", "user-1", "--session", "s-1")
	assertContains(t, first, "VARIANT:", "(new)")

	again := env.mustRun(t, "assign", "checkout-cta", "--user", "user-1", "--session", "s-2")
	assertContains(t, again, "(existing)")
	if firstLine(first) != firstLine(again) {
		t.Errorf("assignment not sticky: %q vs %q", firstLine(first), firstLine(again))
	}

	assertContains(t,
		env.mustRun(t, "convert", "checkout-cta", "--user", "user-1", "--value", "49.90", "--meta", "plan=pro"),
		"Recorded conversion for user-1")
	assertContains(t,
		env.mustRun(t, "convert", "checkout-cta", "--user", "stranger"),
		"nothing recorded")
	assertContains(t,
		env.mustRun(t, "assign", "missing", "--user", "user-1"),
		"No variant")

	if _, err := env.run("assign", "checkout-cta"); err == nil {
		t.Error("expected error without --user or --session")
	}
	if _, err := env.run("convert", "checkout-cta", "--user", "user-1", "--value", "lots"); err == nil {
		t.Error("expected error for non-numeric --value")
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// seedWinner fills the database with 2000 visitors where variant-1 converts
// about twice as often as control.
func seedWinner(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	e := engine.New(s, engine.WithLogger(logging.Discard()))
	if _, err := e.Catalog().Create(ctx, testutil.Experiment("checkout-cta", 50, 50)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Catalog().Activate(ctx, "checkout-cta"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2000; i++ {
		id := ledger.Identity{UserID: fmt.Sprintf("user-%d", i)}
		d := e.GetVariant(ctx, "checkout-cta", id, bucketing.Attributes{})
		if d == nil {
			t.Fatalf("no variant for %s", id.UserID)
		}
		every := 10
		if d.VariantID == "variant-1" {
			every = 5
		}
		if i%every == 0 {
			e.TrackConversion(ctx, "checkout-cta", id, ledger.Conversion{})
		}
	}
}

func TestResults(t *testing.T) {
	env := newTestEnv(t)
	seedWinner(t, env.dbPath)

	out := env.mustRun(t, "results", "checkout-cta")
	assertContains(t, out,
		"EXPERIMENT: checkout-cta",
		"STATUS: running",
		"PRIMARY METRIC: purchase",
		"VISITORS: 2,000 (minimum 100)",
		"ANALYSIS: WINNER_FOUND",
		"(control)",
		"← WINNER",
		`beats control`,
		"Recommendations:",
		"variant-1 is the winner",
	)

	_, err := env.run("results", "missing")
	if err == nil || !strings.Contains(err.Error(), "experiment 'missing' not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestResults_InsufficientData(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "-f", env.writeDefinition(t), "--activate")
	env.mustRun(t, "assign", "checkout-cta", "--user", "user-1")

	out := env.mustRun(t, "results", "checkout-cta")
	assertContains(t, out, "ANALYSIS: INSUFFICIENT_DATA", "1 of 100 required visitors")
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "create", "-f", env.writeDefinition(t), "--activate")
	env.mustRun(t, "assign", "checkout-cta", "--user", "user-1")
	env.mustRun(t, "assign", "checkout-cta", "--user", "user-2")

	out := env.mustRun(t, "export", "checkout-cta")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), out)
	}
	assertContains(t, lines[0], "experiment_id,variant_id")

	out = env.mustRun(t, "export", "checkout-cta", "--format", "json")
	assertContains(t, out, `"experiments"`, `"assignments"`, `"analysis"`)

	xlsx := filepath.Join(env.dir, "all.xlsx")
	env.mustRun(t, "export", "--all", "--format", "xlsx", "--out", xlsx)
	if info, err := os.Stat(xlsx); err != nil || info.Size() == 0 {
		t.Errorf("expected workbook at %s: %v", xlsx, err)
	}

	tests := [][]string{
		{"export"},
		{"export", "checkout-cta", "--all"},
		{"export", "checkout-cta", "--format", "xml"},
		{"export", "checkout-cta", "--format", "xlsx"},
		{"export", "missing"},
	}
	for _, args := range tests {
		if _, err := env.run(args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("token")
	if err == nil || !strings.Contains(err.Error(), "no server running") {
		t.Errorf("expected missing token error, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(env.dir, ".strike-ab-token"), []byte("abc123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out := env.mustRun(t, "token")
	assertContains(t, out,
		"/admin/experiments?token=abc123",
		"Authorization: Bearer abc123",
	)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
