package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gym-retention/platform/internal/syncjob"
)

const (
	Version = "0.1.0"
	appName = "retention"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Gym membership retention platform",
		Long: `Scores members by churn risk and generates follow-up actions for staff.

Run "serve" for the HTTP API and scheduler, or run a single batch from cron
with "sync", "score" and "actions".`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		scoreCmd(),
		actionsCmd(),
		syncCmd(),
		pipelineCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the pipeline scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.migrate(ctx); err != nil {
				return err
			}
			return serve(ctx, app)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				return app.migrate(ctx)
			})
		},
	}
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Recalculate risk scores for all active members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				result, err := app.Calculator.CalculateAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func actionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "Generate follow-up actions for at-risk members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				result, err := app.Generator.GenerateAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func syncCmd() *cobra.Command {
	var (
		syncType  string
		matricula string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull members or check-ins from the gym system, or refresh activity stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				result, err := app.Syncer.Run(ctx, syncjob.Request{
					Type:      syncjob.Type(syncType),
					Matricula: matricula,
				})
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	cmd.Flags().StringVarP(&syncType, "type", "t", string(syncjob.TypeMembers), "Sync type (members, checkins, stats)")
	cmd.Flags().StringVarP(&matricula, "matricula", "m", "", "Gym account to sync (defaults to PACTO_DEFAULT_MATRICULA)")

	return cmd
}

func pipelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Run stats, scoring and action generation in sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				result, err := app.Pipeline.Run(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("pipeline failed at %s: %s", result.FailedStep, result.Error)
				}
				return nil
			})
		},
	}
}

// withApp runs fn with a wired application, cancelled on SIGINT/SIGTERM
func withApp(fn func(ctx context.Context, app *App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
