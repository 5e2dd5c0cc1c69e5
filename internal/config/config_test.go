package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/warden/internal/app"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/warden.db")
	if cfg.Database.Path != "/tmp/warden.db" || cfg.Database.Driver != DriverSQLite {
		t.Fatalf("unexpected database config %#v", cfg.Database)
	}
	if cfg.Graph.MaxTaskDepth != app.DefaultMaxTaskDepth {
		t.Fatalf("unexpected max depth %d", cfg.Graph.MaxTaskDepth)
	}
	if !cfg.Workflow.AutoCreateStatuses || len(cfg.Workflow.Statuses) != 3 {
		t.Fatalf("expected three seeded statuses, got %#v", cfg.Workflow)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/warden.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/custom/warden.db"

[server]
http_bind = "0.0.0.0:9090"

[graph]
max_task_depth = 4
default_cascade_policy = "cascade"

[store]
op_timeout = "750ms"

[[workflow.statuses]]
label = "Backlog"

[[workflow.statuses]]
label = "Review"
color = "#abc"
requires_comment = true
`)

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/warden.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9090" || cfg.Server.APIEndpoint != "/api/v1" {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if len(cfg.Workflow.Statuses) != 2 || cfg.Workflow.Statuses[0].Label != "Backlog" {
		t.Fatalf("expected file statuses to replace defaults, got %#v", cfg.Workflow.Statuses)
	}

	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatalf("ServiceConfig() error = %v", err)
	}
	if svcCfg.MaxTaskDepth != 4 || svcCfg.DefaultCascadePolicy != app.CascadePolicyCascade {
		t.Fatalf("unexpected service config %#v", svcCfg)
	}
	if svcCfg.OperationTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected timeout %s", svcCfg.OperationTimeout)
	}
	if !svcCfg.StatusTemplates[1].Flags.RequiresComment {
		t.Fatalf("expected requires_comment on second template, got %#v", svcCfg.StatusTemplates[1])
	}
}

func TestServiceConfigZeroDepthDisablesBound(t *testing.T) {
	cfg := Default("/tmp/warden.db")
	cfg.Graph.MaxTaskDepth = 0
	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		t.Fatalf("ServiceConfig() error = %v", err)
	}
	if svcCfg.MaxTaskDepth >= 0 {
		t.Fatalf("expected negative depth to disable the bound, got %d", svcCfg.MaxTaskDepth)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"driver": `
[database]
driver = "mysql"
`,
		"postgres without dsn": `
[database]
driver = "postgres"
`,
		"endpoint": `
[server]
api_endpoint = "api"
`,
		"depth": `
[graph]
max_task_depth = -2
`,
		"policy": `
[graph]
default_cascade_policy = "orphan"
`,
		"duplicate status": `
[[workflow.statuses]]
label = "Done"

[[workflow.statuses]]
label = "done"
`,
		"color": `
[[workflow.statuses]]
label = "Done"
color = "green"
`,
		"timeout": `
[store]
op_timeout = "soon"
`,
		"level": `
[logging]
level = "loud"
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content), Default("/tmp/default.db"))
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[database\npath = 1"), Default("/tmp/default.db"))
	if err == nil || !strings.Contains(err.Error(), "decode toml") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
