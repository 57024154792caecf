package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/coord/internal/config"
	"github.com/clinicdesk/coord/internal/domain/queue"
	"github.com/clinicdesk/coord/internal/domain/room"
	"github.com/clinicdesk/coord/internal/platform/db"
	"github.com/clinicdesk/coord/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "coord-station",
		Short:        "Clinic workstation coordination service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(roomsCmd())
	rootCmd.AddCommand(queueCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	if cfg.StationName != "" {
		logger = logger.With().Str("station", cfg.StationName).Logger()
	}
	return logger.Level(level)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workstation: command API, peer listener and poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(cfg))
		},
	}
}

// withPostgres loads the config and opens a pool for admin commands, which
// only make sense against the shared store.
func withPostgres(ctx context.Context, schema string, fn func(*config.Config, *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("this command needs STORE_DRIVER=%s", config.StoreDriverPostgres)
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	cfg.DBSchema = schema
	return fn(cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the coordination schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withPostgres(cmd.Context(), schema, func(cfg *config.Config, pool *pgxpool.Pool) error {
				m := db.NewMigrator(pool, migrations.FS)
				fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
				count, err := m.Up(cmd.Context(), cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withPostgres(cmd.Context(), schema, func(cfg *config.Config, pool *pgxpool.Pool) error {
				m := db.NewMigrator(pool, migrations.FS)
				statuses, err := m.Status(cmd.Context(), cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func roomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage consultation rooms",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetInt("id")
			name, _ := cmd.Flags().GetString("name")
			return withPostgres(cmd.Context(), "", func(cfg *config.Config, q *pgxpool.Pool) error {
				mgr := room.NewManager(room.NewRepoPG(q), newLogger(cfg))
				if err := mgr.CreateRoom(cmd.Context(), &room.Room{ID: id, Name: name, IsActive: true}); err != nil {
					return err
				}
				fmt.Printf("Room %d (%s) created.\n", id, name)
				return nil
			})
		},
	}
	addCmd.Flags().Int("id", 0, "Room number")
	addCmd.Flags().String("name", "", "Display name")
	_ = addCmd.MarkFlagRequired("id")
	_ = addCmd.MarkFlagRequired("name")
	cmd.AddCommand(addCmd)

	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue maintenance",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete completed items older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withPostgres(cmd.Context(), "", func(cfg *config.Config, q *pgxpool.Pool) error {
				log := newLogger(cfg)
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				rooms := room.NewManager(room.NewRepoPG(q), log)
				svc := queue.NewService(queue.NewRepoPG(q), rooms, cfg.DefaultActionRoom, loc, log)
				n, err := svc.PurgeCompletedBefore(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d completed item(s).\n", n)
				return nil
			})
		},
	}
	purgeCmd.Flags().Duration("older-than", 30*24*time.Hour, "Retention window")
	cmd.AddCommand(purgeCmd)

	return cmd
}
