package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
)

// Version is the version of the application, set at build time
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// cli holds the global flags and the lazily loaded config.
type cli struct {
	configPath  string
	dbPath      string
	permissive  bool
	cfg         *config.Config
	logToStderr bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Track feeds, repositories, prices and JSON endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "Path to database file (overrides config)")
	root.PersistentFlags().BoolVar(&c.permissive, "permissive", false, "Allow loopback and private hosts as sources")

	root.AddCommand(
		newServeCmd(c),
		newAddCmd(c),
		newListCmd(c),
		newShowCmd(c),
		newEditCmd(c),
		newRemoveCmd(c),
		newRefreshCmd(c),
		newClassifyCmd(c),
		newKeysCmd(c),
		newSearchCmd(c),
		newOpenCmd(c),
		newConfigCmd(c),
		newVersionCmd(),
	)
	return root
}

// load reads the config once and sets up logging from it.
func (c *cli) load() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.dbPath != "" {
		cfg.Database.Path = c.dbPath
	}
	if c.permissive {
		cfg.Engine.PermissiveURLs = true
	}

	level := debuglog.ParseLogLevel(cfg.Log.Level)
	if c.logToStderr && cfg.Log.File == "" {
		if level == debuglog.LevelOff {
			level = debuglog.LevelInfo
		}
		debuglog.SetupWriter(level, os.Stderr)
	} else if err := debuglog.Setup(level, cfg.Log.File); err != nil {
		return nil, err
	}

	c.cfg = cfg
	return cfg, nil
}

// withApp loads the config, wires the app, runs fn and closes the app.
func (c *cli) withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			debuglog.Errorf("closing: %v", err)
		}
		_ = debuglog.Close()
	}()
	return fn(a)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", appName, Version)
			fmt.Fprintln(out, "Tracker engine for feeds, repositories, prices and JSON endpoints")
			fmt.Fprintln(out, "github.com/pders01/ntrack")
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var force bool
	generate := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".config", appName, "config.toml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	generate.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(generate)
	return cmd
}
