package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/domain"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Graph    GraphConfig    `toml:"graph"`
	Workflow WorkflowConfig `toml:"workflow"`
	Store    StoreConfig    `toml:"store"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

// GraphConfig bounds the task hierarchy. MaxTaskDepth of 0 disables the bound.
type GraphConfig struct {
	MaxTaskDepth         int    `toml:"max_task_depth"`
	DefaultCascadePolicy string `toml:"default_cascade_policy"`
}

type WorkflowConfig struct {
	AutoCreateStatuses bool           `toml:"auto_create_statuses"`
	Statuses           []StatusConfig `toml:"statuses"`
}

type StatusConfig struct {
	Label             string `toml:"label"`
	Color             string `toml:"color"`
	ShowStrikeThrough bool   `toml:"show_strike_through"`
	Hidden            bool   `toml:"hidden"`
	RequiresComment   bool   `toml:"requires_comment"`
	AllowsComment     bool   `toml:"allows_comment"`
}

type StoreConfig struct {
	OpTimeout string `toml:"op_timeout"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func defaultStatuses() []StatusConfig {
	return []StatusConfig{
		{Label: "To Do", AllowsComment: true},
		{Label: "In Progress", AllowsComment: true},
		{Label: "Done", ShowStrikeThrough: true, AllowsComment: true},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Auth: AuthConfig{
			Issuer: "warden",
		},
		Graph: GraphConfig{
			MaxTaskDepth:         app.DefaultMaxTaskDepth,
			DefaultCascadePolicy: string(app.CascadePolicyRejectIfChildren),
		},
		Workflow: WorkflowConfig{
			AutoCreateStatuses: true,
			Statuses:           defaultStatuses(),
		},
		Store: StoreConfig{
			OpTimeout: app.DefaultOperationTimeout.String(),
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".warden/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	// A file that lists workflow statuses replaces the default set instead of extending it.
	var probe struct {
		Workflow struct {
			Statuses []StatusConfig `toml:"statuses"`
		} `toml:"workflow"`
	}
	if err := toml.Unmarshal(content, &probe); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if len(probe.Workflow.Statuses) > 0 {
		cfg.Workflow.Statuses = nil
	}
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.TrimSpace(strings.ToLower(c.Database.Driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with '/': %q", name, endpoint)
		}
	}

	if c.Graph.MaxTaskDepth < 0 {
		return fmt.Errorf("graph.max_task_depth must be >= 0, got %d", c.Graph.MaxTaskDepth)
	}
	if strings.TrimSpace(c.Graph.DefaultCascadePolicy) != "" {
		if _, err := app.ParseCascadePolicy(c.Graph.DefaultCascadePolicy); err != nil {
			return fmt.Errorf("invalid graph.default_cascade_policy: %w", err)
		}
	}

	seenLabel := map[string]struct{}{}
	for idx, st := range c.Workflow.Statuses {
		label := strings.TrimSpace(st.Label)
		if label == "" {
			return fmt.Errorf("workflow.statuses[%d].label is required", idx)
		}
		key := strings.ToLower(label)
		if _, ok := seenLabel[key]; ok {
			return fmt.Errorf("workflow.statuses[%d].label is duplicated: %s", idx, label)
		}
		seenLabel[key] = struct{}{}
		if strings.TrimSpace(st.Color) != "" {
			if _, err := domain.NormalizeColor(st.Color); err != nil {
				return fmt.Errorf("workflow.statuses[%d].color: %w", idx, err)
			}
		}
	}

	if _, err := c.Store.Timeout(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level %q: %w", c.Logging.Level, err)
	}
	return nil
}

// Timeout parses op_timeout. An empty value yields zero, which keeps the service default.
func (s StoreConfig) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(s.OpTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid store.op_timeout %q: %w", s.OpTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("store.op_timeout must be >= 0, got %s", d)
	}
	return d, nil
}

// ServiceConfig maps the loaded settings onto the application service.
func (c Config) ServiceConfig() (app.ServiceConfig, error) {
	timeout, err := c.Store.Timeout()
	if err != nil {
		return app.ServiceConfig{}, err
	}
	var policy app.CascadePolicy
	if strings.TrimSpace(c.Graph.DefaultCascadePolicy) != "" {
		policy, err = app.ParseCascadePolicy(c.Graph.DefaultCascadePolicy)
		if err != nil {
			return app.ServiceConfig{}, err
		}
	}
	depth := c.Graph.MaxTaskDepth
	if depth == 0 {
		// The service reads zero as "use the default".
		depth = -1
	}

	templates := make([]app.StatusTemplate, 0, len(c.Workflow.Statuses))
	for _, st := range c.Workflow.Statuses {
		templates = append(templates, app.StatusTemplate{
			Label: st.Label,
			Color: st.Color,
			Flags: domain.StatusFlags{
				ShowStrikeThrough: st.ShowStrikeThrough,
				Hidden:            st.Hidden,
				RequiresComment:   st.RequiresComment,
				AllowsComment:     st.AllowsComment,
			},
		})
	}

	return app.ServiceConfig{
		MaxTaskDepth:         depth,
		OperationTimeout:     timeout,
		DefaultCascadePolicy: policy,
		StatusTemplates:      templates,
		AutoCreateStatuses:   c.Workflow.AutoCreateStatuses,
	}, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
