package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"bibkeys/internal/config"
	"bibkeys/internal/database"
	"bibkeys/internal/logging"
	"bibkeys/internal/services"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// ErrDuplicatesFound makes `bibkeys duplicates` exit non-zero when a
// collision exists.
var ErrDuplicatesFound = errors.New("duplicate citation keys found")

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

// NewRootCmd builds a fresh command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "bibkeys",
		Short: "bibkeys - BibTeX citation key deduplication",
		Long: `bibkeys finds citation keys used by more than one BibTeX entry and
renames the later ones deterministically (smith2020, smith2020_1, ...)
so every key is unique.

It works on plain .bib files, merges several files into one, and keeps
per-project reference libraries in a database that can be served over HTTP.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.bibkeys/config.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("style", "", "suffix style for renamed keys: numeric or alpha")
	flags.String("separator", "", "separator between key and suffix")
	flags.Bool("ignore-case", false, "treat keys differing only in case as duplicates")

	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("keys.style", flags.Lookup("style"))
	_ = a.v.BindPFlag("keys.separator", flags.Lookup("separator"))
	_ = a.v.BindPFlag("keys.case_insensitive", flags.Lookup("ignore-case"))

	rootCmd.AddCommand(
		a.newResolveCmd(),
		a.newDuplicatesCmd(),
		a.newMergeCmd(),
		a.newProjectCmd(),
		a.newServeCmd(),
		a.newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bibkeys %s\n", Version)
		},
	}
}

// initConfig reads .env, the config file and BIBKEYS_* variables.
func (a *app) initConfig() error {
	_ = godotenv.Load()

	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", a.cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	a.v.AddConfigPath(filepath.Join(home, ".bibkeys"))
	a.v.SetConfigType("yaml")
	a.v.SetConfigName("config")

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// commandContext returns the command's context carrying a console logger.
func (a *app) commandContext(cmd *cobra.Command, cfg *config.Config) (context.Context, zerolog.Logger) {
	logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, true)
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug().Str("path", used).Msg("using config file")
	}
	return logger.WithContext(cmd.Context()), logger
}

func (a *app) openServices(cfg *config.Config) (services.ProjectService, *services.DefaultBibTexService, func(), error) {
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	projects := services.NewProjectService(db, cfg.Keys, cfg.Storage.Dir)
	return projects, services.NewBibTexService(projects, cfg.Keys), closeDB, nil
}
