package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/server"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/auth"
	"github.com/prempal04/AyurSutra/pkg/cache"
	"github.com/prempal04/AyurSutra/pkg/clock"
	"github.com/prempal04/AyurSutra/pkg/database"
	"github.com/prempal04/AyurSutra/pkg/logger"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, log)
			if err != nil {
				log.Error("failed to start", zap.Error(err))
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create schemas, tables and indexes in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			switch cfg.Database.Driver {
			case config.DriverPostgres:
				db, err := database.Connect(cfg.Database, log)
				if err != nil {
					return err
				}
				if err := database.Migrate(db, log); err != nil {
					return err
				}
			case config.DriverMongo:
				// Indexes are ensured when the store opens.
				stores, err := server.OpenStores(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				defer func() { _ = stores.Close(context.Background()) }()
			default:
				log.Info("nothing to migrate", zap.String("driver", cfg.Database.Driver))
				return nil
			}
			log.Info("migration complete", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	var practitioner, date string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the free slots of a practitioner on a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, err := uuid.Parse(practitioner)
			if err != nil {
				return fmt.Errorf("invalid --practitioner: %w", err)
			}
			day, err := clock.ParseDate(date)
			if err != nil {
				return err
			}

			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			schedule, err := config.LoadSchedule(cfg.Schedule.File)
			if err != nil {
				return err
			}
			stores, err := server.OpenStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close(context.Background()) }()

			m := metrics.NewCollector("ayursutra", prometheus.NewRegistry())
			avail := service.NewAvailabilityService(stores.Appointments, schedule, cache.NopSlotCache{}, m, log)
			slots, err := avail.ListFreeSlots(cmd.Context(), pid, day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(slots) == 0 {
				fmt.Fprintf(out, "no free slots on %s\n", clock.FormatDate(day))
				return nil
			}
			for _, s := range slots {
				fmt.Fprintf(out, "%s-%s\n", clock.Format(s.Start), clock.Format(s.End))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&practitioner, "practitioner", "", "practitioner id")
	cmd.Flags().StringVar(&date, "date", "", "calendar day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("practitioner")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func tokenCmd() *cobra.Command {
	var role, user, staff, patient, email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.App.Environment == "production" {
				return fmt.Errorf("token minting is disabled in production")
			}

			claims := &domain.Claims{Role: domain.Role(role), Email: email}
			if claims.UserID, err = parseOptionalUUID(user); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			if claims.UserID == uuid.Nil {
				claims.UserID = uuid.New()
			}
			if staff != "" {
				id, err := uuid.Parse(staff)
				if err != nil {
					return fmt.Errorf("invalid --staff: %w", err)
				}
				claims.StaffID = &id
			}
			if patient != "" {
				id, err := uuid.Parse(patient)
				if err != nil {
					return fmt.Errorf("invalid --patient: %w", err)
				}
				claims.PatientID = &id
			}

			if ttl > 0 {
				cfg.JWT.AccessTokenTTL = ttl
			}
			token, expiresAt, err := auth.NewJWTManager(cfg.JWT).GenerateAccessToken(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "user %s, role %s, expires %s\n", claims.UserID, claims.Role, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleReceptionist), "admin, doctor, receptionist or patient")
	cmd.Flags().StringVar(&user, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&staff, "staff", "", "staff id; for doctors this is the practitioner id")
	cmd.Flags().StringVar(&patient, "patient", "", "patient id")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_ACCESS_TTL)")
	return cmd
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
