// Command warden serves and administers the multi-tenant workspace core.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hylla/warden/internal/adapters/server"
	"github.com/hylla/warden/internal/adapters/server/common"
	"github.com/hylla/warden/internal/adapters/storage/sqlstore"
	"github.com/hylla/warden/internal/app"
	"github.com/hylla/warden/internal/config"
	"github.com/hylla/warden/internal/identity"
	"github.com/hylla/warden/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg server.Config, deps server.Dependencies) error {
	return server.Run(ctx, cfg, deps)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// globalFlags holds the persistent root flags.
type globalFlags struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
}

// run builds the command tree and executes it through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root,
		fang.WithVersion(version),
		fang.WithoutManpage(),
	)
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{appName: platform.DefaultAppName, devMode: version == "dev"}
	if envDev, ok := parseBoolEnv("WARDEN_DEV_MODE"); ok {
		flags.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("WARDEN_APP_NAME")); envApp != "" {
		flags.appName = envApp
	}

	root := &cobra.Command{
		Use:           "warden",
		Short:         "Role-gated projects, task trees and status workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config TOML")
	pf.StringVar(&flags.dbPath, "db", "", "path to sqlite database")
	pf.StringVar(&flags.appName, "app", flags.appName, "application name for config/data path resolution")
	pf.BoolVar(&flags.devMode, "dev", flags.devMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newServeCommand(flags, stderr),
		newPathsCommand(flags, stdout),
		newSeedCommand(flags, stdout, stderr),
		newExportCommand(flags, stdout, stderr),
		newStatusesCommand(flags, stdout, stderr),
		newTokenCommand(flags, stdout, stderr),
		newColorsCommand(stdout),
		newVersionCommand(stdout),
	)
	return root
}

// runtimeEnv is the opened application stack shared by store-backed commands.
type runtimeEnv struct {
	cfg    config.Config
	paths  platform.Paths
	logger *runtimeLogger
	repo   *sqlstore.Repository
	svc    *app.Service
}

// Close releases the store and the dev log sink.
func (e *runtimeEnv) Close() {
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("store close failed", "driver", e.repo.Driver(), "err", err)
		}
	}
	_ = e.logger.Close()
}

// resolveConfig loads environment files and the TOML config, applying flag and
// environment overrides.
func resolveConfig(flags *globalFlags) (config.Config, platform.Paths, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: flags.appName,
		DevMode: flags.devMode,
	})
	if err != nil {
		return config.Config{}, platform.Paths{}, err
	}
	if err := loadEnvFiles(".env", paths.EnvPath); err != nil {
		return config.Config{}, platform.Paths{}, err
	}

	configPath := strings.TrimSpace(flags.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("WARDEN_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(flags.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("WARDEN_DB_PATH"))
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return config.Config{}, platform.Paths{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dsn := strings.TrimSpace(os.Getenv("WARDEN_DATABASE_DSN")); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := os.Getenv("WARDEN_JWT_SECRET"); strings.TrimSpace(secret) != "" {
		cfg.Auth.JWTSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, platform.Paths{}, err
	}
	return cfg, paths, nil
}

// loadEnvFiles loads each existing dotenv file. Variables already set win.
func loadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return nil
}

// openRuntime resolves config, builds the logger and opens the store and service.
func openRuntime(flags *globalFlags, command string, stderr io.Writer) (*runtimeEnv, error) {
	cfg, paths, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}
	logger, err := newRuntimeLogger(stderr, flags.appName, flags.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	env := &runtimeEnv{cfg: cfg, paths: paths, logger: logger}

	logger.Info("startup configuration resolved", "app", flags.appName, "dev_mode", flags.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", paths.ConfigPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	if cfg.Database.Driver != config.DriverPostgres {
		if err := config.EnsureConfigDir(cfg.Database.Path); err != nil {
			env.Close()
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	logger.Info("opening store", "driver", cfg.Database.Driver, "db_path", cfg.Database.Path)
	repo, err := sqlstore.OpenDriver(cfg.Database.Driver, cfg.Database.Path, cfg.Database.DSN)
	if err != nil {
		logger.Error("store open failed", "driver", cfg.Database.Driver, "err", err)
		env.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	env.repo = repo
	logger.Info("store ready", "driver", repo.Driver(), "migrations", "ensured")

	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.svc = app.NewService(repo, uuid.NewString, nil, svcCfg)
	logger.Debug("application service initialized",
		"max_task_depth", cfg.Graph.MaxTaskDepth,
		"default_cascade_policy", svcCfg.DefaultCascadePolicy,
		"op_timeout", svcCfg.OperationTimeout,
	)
	return env, nil
}

func newServeCommand(flags *globalFlags, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(flags, "serve", stderr)
			if err != nil {
				return err
			}
			defer env.Close()

			verifier, err := identity.NewVerifier(env.cfg.Auth.JWTSecret, env.cfg.Auth.Issuer)
			if err != nil {
				return fmt.Errorf("configure token verifier: %w", err)
			}
			serverCfg := server.Config{
				HTTPBind:      firstNonEmpty(httpBind, env.cfg.Server.HTTPBind),
				APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
				MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
				ServerName:    flags.appName,
				ServerVersion: version,
			}
			env.logger.Info("command flow start", "command", "serve", "http", serverCfg.HTTPBind)
			err = serveCommandRunner(cmd.Context(), serverCfg, server.Dependencies{
				Workspace: common.NewAppServiceAdapter(env.svc),
				Auth:      verifier,
				Ready:     env.repo.Ping,
			})
			if err != nil {
				env.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			env.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint")
	return cmd
}

func newPathsCommand(flags *globalFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			paths, err := platform.DefaultPathsWithOptions(platform.Options{
				AppName: flags.appName,
				DevMode: flags.devMode,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", flags.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", flags.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(stdout, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
			return nil
		},
	}
}

func newTokenCommand(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, _, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			verifier, err := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return fmt.Errorf("configure token issuer: %w", err)
			}
			token, err := verifier.Issue(userID, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id carried in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			_, _ = fmt.Fprintf(stdout, "warden %s\n", version)
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseBoolEnv reads a boolean environment variable. The second result is false when unset or malformed.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
