package server

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
	"github.com/prempal04/AyurSutra/internal/repository/memory"
	"github.com/prempal04/AyurSutra/internal/repository/mongodb"
	"github.com/prempal04/AyurSutra/internal/repository/postgres"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/database"
)

// Stores is the booking and audit storage selected by DB_DRIVER.
type Stores struct {
	Driver       string
	Appointments appointment.Repository
	Audit        service.AuditRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

func OpenStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.Connect(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
		}
		return &Stores{
			Driver:       config.DriverPostgres,
			Appointments: postgres.NewAppointmentRepository(db, log),
			Audit:        postgres.NewAuditRepository(db),
			ping:         sqlDB.PingContext,
			close:        func(context.Context) error { return sqlDB.Close() },
		}, nil

	case config.DriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewAppointmentRepository(db, log)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("ensuring mongo indexes: %w", err)
		}
		return &Stores{
			Driver:       config.DriverMongo,
			Appointments: repo,
			Audit:        mongodb.NewAuditRepository(db),
			ping:         func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			close:        client.Disconnect,
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory booking store; data is lost on restart")
		return &Stores{
			Driver:       config.DriverMemory,
			Appointments: memory.NewAppointmentRepository(),
			Audit:        memory.NewAuditRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
}
