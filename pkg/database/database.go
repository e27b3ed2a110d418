package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

func Connect(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:                                   newGormLogger(log, cfg.SlowQueryThreshold),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
		DisableAutomaticPing:                     false,
		TranslateError:                           true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: false,
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// newGormLogger reports only slow queries and errors, through zap.
func newGormLogger(log *zap.Logger, slow time.Duration) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"clinical", "audit"} // logical namespace
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	if err := db.Exec(`CREATE SEQUENCE IF NOT EXISTS clinical.appointment_number_seq`).Error; err != nil {
		return fmt.Errorf("creating appointment number sequence: %w", err)
	}

	models := []any{
		&domain.AuditLog{},
		&appointment.Appointment{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// occupyingStatusList is the SQL list of statuses that hold a slot.
const occupyingStatusList = `('scheduled', 'confirmed', 'in-progress', 'rescheduled')`

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		{
			// Two live bookings of one practitioner never start at the same minute.
			name: "uq_appointments_practitioner_start",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_practitioner_start
				ON clinical.appointments (practitioner_id, date, start_minute)
				WHERE deleted_at IS NULL AND status IN ` + occupyingStatusList,
		},
		{
			name: "idx_appointments_practitioner_day",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_practitioner_day
				ON clinical.appointments (practitioner_id, date, start_minute, end_minute)
				WHERE deleted_at IS NULL`,
		},
		{
			name: "idx_appointments_overdue",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_overdue
				ON clinical.appointments (date, end_minute)
				WHERE deleted_at IS NULL AND status IN ('scheduled', 'confirmed')`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("%s: %w", idx.name, err)
		}
	}

	return nil
}
