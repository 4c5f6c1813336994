package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-api/config"
	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/seed"
	"github.com/jwalitptl/clinic-api/internal/service/appointment"
	"github.com/jwalitptl/clinic-api/internal/service/event"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Clinic API administration",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Directory containing config.yml")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return app.Bootstrap(configDir)
	}
	return app.Bootstrap()
}

func withDB(fn func(ctx context.Context, db *sqlx.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrations need the postgres store, got %q", cfg.Store)
	}
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *sqlx.DB) error {
				count, err := postgres.NewMigrator(db).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *sqlx.DB) error {
				rolledBack, err := postgres.NewMigrator(db).Down(ctx)
				if err != nil {
					return err
				}
				if !rolledBack {
					fmt.Println("Nothing to roll back.")
					return nil
				}
				fmt.Println("Rolled back 1 migration.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(ctx context.Context, db *sqlx.DB) error {
				statuses, err := postgres.NewMigrator(db).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-30s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-30s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	var (
		patients int
		rndSeed  int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo patients and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if patients < 0 {
				return fmt.Errorf("--patients must not be negative")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			m := metrics.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
			v := validator.New()
			events := event.NewEventService()

			seeder := seed.NewSeeder(
				patient.NewService(store, v, events, nil, m),
				appointment.NewService(store, v, events, m),
				store.Appointments(),
				rndSeed,
			)
			res, err := seeder.Run(ctx, patients)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d patient(s) and %d appointment(s); %d booking(s) skipped.\n",
				res.Patients, res.Appointments, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&patients, "patients", 20, "Number of random patients to create")
	cmd.Flags().Int64Var(&rndSeed, "seed", time.Now().UnixNano(), "Random seed")
	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published booking events",
	}

	var channel string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events from the broker channel until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if channel == "" {
				channel = cfg.Redis.Channel
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			broker, err := app.OpenBroker(ctx, cfg)
			if err != nil {
				return err
			}
			defer broker.Close()

			messages, err := broker.Subscribe(ctx, channel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", channel)
			for msg := range messages {
				fmt.Fprintln(cmd.OutOrStdout(), string(msg))
			}
			return nil
		},
	}
	tail.Flags().StringVar(&channel, "channel", "", "Channel to subscribe to (defaults to redis.channel)")
	cmd.AddCommand(tail)
	return cmd
}
