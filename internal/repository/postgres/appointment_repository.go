package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

type AppointmentRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewAppointmentRepository(db *gorm.DB, log *zap.Logger) *AppointmentRepository {
	return &AppointmentRepository{db: db, log: log}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	if err := a.Slot().Validate(); err != nil {
		return err
	}
	a.Date = availability.Day(a.Date)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPractitionerDay(tx, a.PractitionerID, a.Date); err != nil {
			return err
		}
		if err := checkSlot(tx, a, nil); err != nil {
			return err
		}
		if a.AppointmentNumber == "" {
			var n int64
			if err := tx.Raw(`SELECT nextval('clinical.appointment_number_seq')`).Scan(&n).Error; err != nil {
				return fmt.Errorf("allocating appointment number: %w", err)
			}
			a.AppointmentNumber = appointment.FormatNumber(n)
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		return tx.Create(a).Error
	})
	if errors.Is(err, appointment.ErrAppointmentConflict) {
		r.log.Debug("slot taken at insert",
			zap.String("practitioner_id", a.PractitionerID.String()),
			zap.Time("date", a.Date),
			zap.Stringer("slot", a.Slot()),
		)
	}
	return translate(err, "creating appointment")
}

func (r *AppointmentRepository) Reschedule(ctx context.Context, a *appointment.Appointment, from appointment.Status) error {
	if err := a.Slot().Validate(); err != nil {
		return err
	}
	a.Date = availability.Day(a.Date)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPractitionerDay(tx, a.PractitionerID, a.Date); err != nil {
			return err
		}
		if err := checkSlot(tx, a, &a.ID); err != nil {
			return err
		}
		res := tx.Model(&appointment.Appointment{}).
			Where("id = ? AND status = ? AND deleted_at IS NULL", a.ID, from).
			Updates(map[string]any{
				"date":                  a.Date,
				"start_minute":          a.StartMinute,
				"end_minute":            a.EndMinute,
				"status":                a.Status,
				"original_date":         a.OriginalDate,
				"original_start_minute": a.OriginalStartMinute,
				"original_end_minute":   a.OriginalEndMinute,
				"reschedule_reason":     a.RescheduleReason,
				"rescheduled_by":        a.RescheduledBy,
				"rescheduled_at":        a.RescheduledAt,
				"reschedule_count":      a.RescheduleCount,
				"updated_by":            a.UpdatedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOrChanged(tx, a.ID)
		}
		return nil
	})
	return translate(err, "rescheduling appointment")
}

// lockPractitionerDay serialises writers of one practitioner-day until the
// surrounding transaction ends.
func lockPractitionerDay(tx *gorm.DB, practitionerID uuid.UUID, date time.Time) error {
	key := practitionerID.String() + "|" + date.Format(time.DateOnly)
	if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, key).Error; err != nil {
		return fmt.Errorf("locking practitioner day: %w", err)
	}
	return nil
}

func checkSlot(tx *gorm.DB, a *appointment.Appointment, exclude *uuid.UUID) error {
	q := tx.Where("practitioner_id = ? AND date = ? AND deleted_at IS NULL", a.PractitionerID, a.Date).
		Where("status IN ?", availability.OccupyingStatuses)
	if exclude != nil {
		q = q.Where("id <> ?", *exclude)
	}

	var rows []*appointment.Appointment
	if err := q.Order("start_minute").Find(&rows).Error; err != nil {
		return fmt.Errorf("loading bookings: %w", err)
	}

	res, err := availability.Check(a.Slot(), a.PractitionerID, a.Date, appointment.Windows(rows))
	if err != nil {
		return err
	}
	if !res.Available {
		return &appointment.ConflictError{Conflicts: res.Conflicts}
	}
	return nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", id).
		First(&a).Error
	if err != nil {
		return nil, translate(err, "getting appointment")
	}
	return &a, nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	q.Normalize()

	base := r.db.WithContext(ctx).Model(&appointment.Appointment{}).Where("deleted_at IS NULL")
	if q.PatientID != nil {
		base = base.Where("patient_id = ?", *q.PatientID)
	}
	if q.PractitionerID != nil {
		base = base.Where("practitioner_id = ?", *q.PractitionerID)
	}
	if q.Status != nil {
		base = base.Where("status = ?", *q.Status)
	}
	if q.Type != nil {
		base = base.Where("type = ?", *q.Type)
	}
	if q.DateFrom != nil {
		base = base.Where("date >= ?", availability.Day(*q.DateFrom))
	}
	if q.DateTo != nil {
		base = base.Where("date <= ?", availability.Day(*q.DateTo))
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	var list []*appointment.Appointment
	err := base.Session(&gorm.Session{}).
		Order("date, start_minute, created_at").
		Offset(q.Offset()).
		Limit(q.PageSize).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	return appointment.NewPage(list, total, q), nil
}

func (r *AppointmentRepository) ListForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	list := []*appointment.Appointment{}
	err := r.db.WithContext(ctx).
		Where("practitioner_id = ? AND date = ? AND deleted_at IS NULL", practitionerID, availability.Day(date)).
		Order("start_minute, created_at").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("listing day bookings: %w", err)
	}
	return list, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment, from appointment.Status) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&appointment.Appointment{}).
		Where("id = ? AND status = ? AND deleted_at IS NULL", a.ID, from).
		Updates(map[string]any{
			"status":              a.Status,
			"notes":               a.Notes,
			"confirmed_at":        a.ConfirmedAt,
			"started_at":          a.StartedAt,
			"cancelled_at":        a.CancelledAt,
			"cancellation_reason": a.CancellationReason,
			"cancelled_by":        a.CancelledBy,
			"completed_at":        a.CompletedAt,
			"completion_notes":    a.CompletionNotes,
			"no_show_at":          a.NoShowAt,
			"updated_by":          a.UpdatedBy,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return missingOrChanged(db, a.ID)
	}
	return nil
}

// missingOrChanged explains a conditional write that matched no row.
func missingOrChanged(db *gorm.DB, id uuid.UUID) error {
	var n int64
	if err := db.Model(&appointment.Appointment{}).Where("id = ? AND deleted_at IS NULL", id).Count(&n).Error; err != nil {
		return fmt.Errorf("looking up appointment: %w", err)
	}
	if n == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return appointment.ErrStatusChanged
}

func (r *AppointmentRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": time.Now().UTC(),
			"updated_by": deletedBy,
		})
	if res.Error != nil {
		return fmt.Errorf("deleting appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (r *AppointmentRepository) ListOverdue(ctx context.Context, day time.Time, endMinute int, limit int) ([]*appointment.Appointment, error) {
	day = availability.Day(day)
	q := r.db.WithContext(ctx).
		Where("deleted_at IS NULL AND status IN ?", []appointment.Status{appointment.StatusScheduled, appointment.StatusConfirmed}).
		Where("date < ? OR (date = ? AND end_minute <= ?)", day, day, endMinute).
		Order("date, start_minute")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var list []*appointment.Appointment
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("listing overdue appointments: %w", err)
	}
	return list, nil
}

// translate maps driver errors onto the domain's sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var ce *appointment.ConflictError
	switch {
	case errors.As(err, &ce),
		errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrStatusChanged),
		errors.Is(err, availability.ErrInvalidInterval):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return appointment.ErrAppointmentNotFound
	}
	// Raised by the partial unique index on (practitioner_id, date, start_minute).
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, appointment.ErrAppointmentConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
