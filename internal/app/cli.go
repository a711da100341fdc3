package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
)

// Version is overridden at build time with -ldflags "-X trigger-engine/internal/app.Version=..."
var Version = "dev"

// RootOptions holds state shared by every command
type RootOptions struct {
	EnvFile string
	Config  *config.Config
}

// NewRootCommand creates the trigger-engine command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "trigger-engine",
		Short:         "Runs cron and webhook triggers that create agent tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; only an explicitly named file must exist
			if err := godotenv.Load(opts.EnvFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", opts.EnvFile, err)
			}

			logging.InitGlobalLogger()

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				logging.Error("Configuration validation failed", err)
				return err
			}
			opts.Config = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.MustSync()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newTriggersCommand(opts))
	return cmd
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the cron scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), opts.Config)
		},
	}
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Migrate(cmd.Context(), opts.Config)
		},
	}
}

func newTriggersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Inspect and repair triggers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "safety <trigger-id>",
		Short: "Print how close a trigger is to being auto-disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts.Config, func(ctx context.Context, app *App) error {
				status, err := app.Triggers.GetTriggerSafetyStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if status == nil {
					return errors.TriggerNotFoundError(args[0])
				}
				return writeJSON(cmd.OutOrStdout(), status)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <trigger-id>",
		Short: "Reset the consecutive failure counter of a trigger",
		Long: `Reset sets consecutive_failures to zero. It does not reactivate a trigger
that was auto-disabled; enable it through the admin API afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts.Config, func(ctx context.Context, app *App) error {
				reset, err := app.Triggers.ResetTriggerFailureCount(ctx, args[0])
				if err != nil {
					return err
				}
				if !reset {
					return errors.TriggerNotFoundError(args[0])
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"trigger_id": args[0],
					"reset":      reset,
				})
			})
		},
	})
	return cmd
}

// withApp runs fn against a fully wired but idle application
func withApp(ctx context.Context, cfg *config.Config, fn func(context.Context, *App) error) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))
	return fn(ctx, app)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
