// Package cli - команды запуска сервиса: serve, worker, migrate
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mwork_messaging/internal/app"
	"mwork_messaging/internal/config"
	"mwork_messaging/internal/database"
	"mwork_messaging/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MWORK"

// NewRootCommand собирает дерево команд
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "mwork-messaging",
		Short:         "MWork messaging and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to config.yaml (default: $CONFIG_PATH or config/config.yaml)")
	flags.String("env-file", ".env", "dotenv file loaded before config")
	flags.String("log-level", "", "override log.level")
	flags.String("events-driver", "", "override events.driver (memory, redis, kafka)")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("env_file", flags.Lookup("env-file"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("events.driver", flags.Lookup("events-driver"))

	root.AddCommand(newServeCommand(v), newWorkerCommand(v), newMigrateCommand(v))
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), v)
	}
	return root
}

// Execute запускает CLI с отменой по SIGINT/SIGTERM
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API together with delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}
	cmd.Flags().Int("port", 0, "override server.port")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func newWorkerCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run delivery, outbox and event workers without HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(v)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunWorkers(cmd.Context())
		},
	}
}

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			app.Setup(cfg)
			db, err := database.Open(cfg)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			logger.Info("Database schema migrated")
			return nil
		},
	}
}

func runServe(ctx context.Context, v *viper.Viper) error {
	a, err := bootstrap(v)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}

func bootstrap(v *viper.Viper) (*app.App, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	app.Setup(cfg)
	logger.Info("Logger initialized", "env", cfg.Server.Env, "level", cfg.Log.Level)

	db, err := app.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, db)
}

// loadConfig: .env -> yaml -> переменные окружения -> флаги и MWORK_*
func loadConfig(v *viper.Viper) (*config.Config, error) {
	if envFile := v.GetString("env_file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("server.port") && v.GetInt("server.port") > 0 {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("log.level") && v.GetString("log.level") != "" {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("events.driver") && v.GetString("events.driver") != "" {
		cfg.Events.Driver = v.GetString("events.driver")
	}
}
