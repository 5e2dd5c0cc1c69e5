package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/warden/internal/adapters/server"
	"github.com/hylla/warden/internal/config"
	"github.com/hylla/warden/internal/fixture"
	"github.com/hylla/warden/internal/identity"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("WARDEN_DEV_MODE", "false")
	os.Exit(m.Run())
}

// isolate points every user directory at a fresh temp dir and moves into it.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("WARDEN_CONFIG", "")
	t.Setenv("WARDEN_DB_PATH", "")
	t.Setenv("WARDEN_JWT_SECRET", "")
	t.Chdir(dir)
	return dir
}

const seedFixture = `
projects:
  - key: platform
    name: Platform
    owner: olga
    members:
      - {user: ana, role: editor}
    statuses:
      - label: Review
        requires_comment: true
    tasks:
      - title: Ship auth
        children:
          - title: Token verifier
`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRunVersion(t *testing.T) {
	isolate(t)
	var out strings.Builder
	if err := run(context.Background(), []string{"version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "warden "+version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRunPathsCommand(t *testing.T) {
	isolate(t)
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "wardenx", "--dev", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"app: wardenx", "dev_mode: true", "wardenx-dev.db"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in paths output, got %q", want, output)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	isolate(t)
	if err := run(context.Background(), []string{"frobnicate"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunServeWiresDependencies(t *testing.T) {
	dir := isolate(t)
	t.Setenv("WARDEN_JWT_SECRET", "serve-secret")

	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	var (
		gotCfg  server.Config
		gotDeps server.Dependencies
	)
	serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
		gotCfg, gotDeps = cfg, deps
		if deps.Ready == nil {
			t.Fatal("expected readiness probe")
		}
		return deps.Ready(ctx)
	}

	dbPath := filepath.Join(dir, "serve.db")
	if err := run(context.Background(), []string{"--db", dbPath, "serve", "--http", "127.0.0.1:9999"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}
	if gotCfg.HTTPBind != "127.0.0.1:9999" || gotCfg.APIEndpoint != "/api/v1" || gotCfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %#v", gotCfg)
	}
	if gotDeps.Workspace == nil || gotDeps.Auth == nil {
		t.Fatalf("expected workspace and auth dependencies, got %#v", gotDeps)
	}

	issuer, err := identity.NewVerifier("serve-secret", "warden")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	token, err := issuer.Issue("olga", time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	userID, err := gotDeps.Auth.VerifyHeader("Bearer " + token)
	if err != nil || userID != "olga" {
		t.Fatalf("expected serve verifier to accept token, got %q, %v", userID, err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at flag path, stat error %v", err)
	}
}

func TestRunServeRequiresSecret(t *testing.T) {
	dir := isolate(t)
	orig := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = orig })
	serveCommandRunner = func(context.Context, server.Config, server.Dependencies) error {
		t.Fatal("serve runner must not start without a secret")
		return nil
	}
	err := run(context.Background(), []string{"--db", filepath.Join(dir, "x.db"), "serve"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestRunLoadsSecretFromDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "WARDEN_JWT_SECRET=from-dotenv\n")
	t.Cleanup(func() { _ = os.Unsetenv("WARDEN_JWT_SECRET") })
	_ = os.Unsetenv("WARDEN_JWT_SECRET")

	var out strings.Builder
	if err := run(context.Background(), []string{"token", "--user", "ana"}, &out, io.Discard); err != nil {
		t.Fatalf("run(token) error = %v", err)
	}
	verifier, err := identity.NewVerifier("from-dotenv", "warden")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	userID, err := verifier.Verify(strings.TrimSpace(out.String()))
	if err != nil || userID != "ana" {
		t.Fatalf("expected token for ana, got %q, %v", userID, err)
	}
}

func TestRunSeedStatusesAndExport(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "seed.db")
	fixturePath := writeFile(t, filepath.Join(dir, "fixture.yaml"), seedFixture)

	var seedOut strings.Builder
	if err := run(context.Background(), []string{"--db", dbPath, "seed", "--file", fixturePath}, &seedOut, io.Discard); err != nil {
		t.Fatalf("run(seed) error = %v", err)
	}
	key, projectID, ok := strings.Cut(strings.TrimSpace(seedOut.String()), "\t")
	if !ok || key != "platform" || projectID == "" {
		t.Fatalf("unexpected seed output %q", seedOut.String())
	}

	var statusOut strings.Builder
	if err := run(context.Background(), []string{"--db", dbPath, "statuses", "--project", projectID, "--as", "ana"}, &statusOut, io.Discard); err != nil {
		t.Fatalf("run(statuses) error = %v", err)
	}
	for _, want := range []string{"To Do", "Done", "#22C55E", "Review", "comment!"} {
		if !strings.Contains(statusOut.String(), want) {
			t.Fatalf("expected %q in statuses output, got %q", want, statusOut.String())
		}
	}

	if err := run(context.Background(), []string{"--db", dbPath, "statuses", "--project", projectID, "--as", "mallory"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected non-member statuses listing to fail")
	}

	outPath := filepath.Join(dir, "out", "export.yaml")
	if err := run(context.Background(), []string{"--db", dbPath, "export", "--as", "olga", "--out", outPath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(export) error = %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("Open(export) error = %v", err)
	}
	defer f.Close()
	doc, err := fixture.Decode(f)
	if err != nil {
		t.Fatalf("Decode(export) error = %v", err)
	}
	if len(doc.Projects) != 1 || len(doc.Projects[0].Tasks) != 1 || len(doc.Projects[0].Tasks[0].Children) != 1 {
		t.Fatalf("unexpected exported document %#v", doc)
	}
}

func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "env.db")
	cfgPath := writeFile(t, filepath.Join(dir, "env.toml"), "[database]\npath = \"/tmp/ignore-me.db\"\n")
	fixturePath := writeFile(t, filepath.Join(dir, "fixture.yaml"), seedFixture)

	t.Setenv("WARDEN_CONFIG", cfgPath)
	t.Setenv("WARDEN_DB_PATH", dbPath)
	if err := run(context.Background(), []string{"seed", "--file", fixturePath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(seed with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	dir := isolate(t)
	cfgPath := writeFile(t, filepath.Join(dir, "config.toml"), "[logging]\nlevel = \"loud\"\n")
	err := run(context.Background(), []string{"--config", cfgPath, "--db", filepath.Join(dir, "x.db"), "export", "--as", "olga"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected invalid logging level error")
	}
}

func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	dir := isolate(t)
	fixturePath := writeFile(t, filepath.Join(dir, "fixture.yaml"), seedFixture)
	if err := run(context.Background(), []string{"--dev", "--db", filepath.Join(dir, "dev.db"), "seed", "--file", fixturePath}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(dev seed) error = %v", err)
	}

	logDir := filepath.Join(workspaceRootFrom(dir), ".warden", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	foundLog := false
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			foundLog = true
			break
		}
	}
	if !foundLog {
		t.Fatalf("expected at least one .log file in %s, got %v", logDir, entries)
	}
}

func TestRunColorsCommand(t *testing.T) {
	isolate(t)
	var out strings.Builder
	if err := run(context.Background(), []string{"colors", "Done", "To-Do", "Custom=#112233"}, &out, io.Discard); err != nil {
		t.Fatalf("run(colors) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"#22C55E", "#3B82F6", "#112233", "explicit", "backfilled"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in colors output, got %q", want, output)
		}
	}
	if err := run(context.Background(), []string{"colors", "Bad=#12"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected invalid color error")
	}
}

func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/x\n")
	if got := workspaceRootFrom(nested); got != root {
		t.Fatalf("workspaceRootFrom() = %q, want %q", got, root)
	}
}

func TestDevLogFilePathIsDated(t *testing.T) {
	got, err := devLogFilePath("/var/log/warden", "my app", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	if want := filepath.Join("/var/log/warden", "my-app-20260304.log"); got != want {
		t.Fatalf("devLogFilePath() = %q, want %q", got, want)
	}
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/warden.db").Logging

	logger, err := newRuntimeLogger(&console, "warden", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include before/after, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("WARDEN_BOOL_TEST", "true")
	if v, ok := parseBoolEnv("WARDEN_BOOL_TEST"); !ok || !v {
		t.Fatalf("expected true, got %v %v", v, ok)
	}
	t.Setenv("WARDEN_BOOL_TEST", "maybe")
	if _, ok := parseBoolEnv("WARDEN_BOOL_TEST"); ok {
		t.Fatal("expected malformed value to be ignored")
	}
}
