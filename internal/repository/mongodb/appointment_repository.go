// Package mongodb stores appointments in MongoDB. Booking writes run in
// multi-document transactions and therefore need a replica set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/internal/domain/appointment"
)

const (
	appointmentsCollection = "appointments"
	countersCollection     = "counters"
	dayLocksCollection     = "practitioner_day_locks"

	appointmentCounterID = "appointment_number"
	opTimeout            = 5 * time.Second
)

type AppointmentRepository struct {
	coll     *mongo.Collection
	counters *mongo.Collection
	locks    *mongo.Collection
	log      *zap.Logger
}

func NewAppointmentRepository(db *mongo.Database, log *zap.Logger) *AppointmentRepository {
	return &AppointmentRepository{
		coll:     db.Collection(appointmentsCollection),
		counters: db.Collection(countersCollection),
		locks:    db.Collection(dayLocksCollection),
		log:      log,
	}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

// EnsureIndexes creates the indexes the repository relies on.
func (r *AppointmentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "appointmentNumber", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_appointment_number"),
		},
		// Two live bookings of one practitioner never start at the same minute.
		{
			Keys: bson.D{{Key: "practitionerId", Value: 1}, {Key: "date", Value: 1}, {Key: "startMinute", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("unique_practitioner_start").
				SetPartialFilterExpression(bson.M{"holdsSlot": true}),
		},
		{
			Keys:    bson.D{{Key: "practitionerId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("practitioner_date_idx"),
		},
		{
			Keys:    bson.D{{Key: "patientId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("patient_date_idx"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}, {Key: "endMinute", Value: 1}},
			Options: options.Index().SetName("status_date_end_idx"),
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create appointment indexes: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *appointment.Appointment) error {
	if err := a.Slot().Validate(); err != nil {
		return err
	}
	a.Date = availability.Day(a.Date)
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AppointmentNumber == "" {
		n, err := r.nextNumber(ctx)
		if err != nil {
			return err
		}
		a.AppointmentNumber = appointment.FormatNumber(n)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	err := r.withDayTransaction(ctx, a, func(sc mongo.SessionContext) error {
		if err := r.checkSlot(sc, a, ""); err != nil {
			return err
		}
		if _, err := r.coll.InsertOne(sc, toDoc(a)); err != nil {
			return fmt.Errorf("insert appointment failed: %w", err)
		}
		return nil
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
	a.UpdatedAt = time.Now().UTC()
	d := toDoc(a)

	err := r.withDayTransaction(ctx, a, func(sc mongo.SessionContext) error {
		if err := r.checkSlot(sc, a, d.ID); err != nil {
			return err
		}
		update := bson.M{"$set": bson.M{
			"date":                d.Date,
			"startMinute":         d.StartMinute,
			"endMinute":           d.EndMinute,
			"holdsSlot":           d.HoldsSlot,
			"status":              d.Status,
			"originalDate":        d.OriginalDate,
			"originalStartMinute": d.OriginalStartMinute,
			"originalEndMinute":   d.OriginalEndMinute,
			"rescheduleReason":    d.RescheduleReason,
			"rescheduledBy":       d.RescheduledBy,
			"rescheduledAt":       d.RescheduledAt,
			"rescheduleCount":     d.RescheduleCount,
			"updatedBy":           d.UpdatedBy,
			"updatedAt":           d.UpdatedAt,
		}}
		res, err := r.coll.UpdateOne(sc, liveWithStatus(d.ID, from), update)
		if err != nil {
			return fmt.Errorf("update appointment failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return r.missingOrChanged(sc, d.ID)
		}
		return nil
	})
	return translate(err, "rescheduling appointment")
}

// withDayTransaction runs fn in a transaction that first bumps the lock
// document of the practitioner-day, so concurrent writers of the same day
// conflict and are retried by the driver.
func (r *AppointmentRepository) withDayTransaction(ctx context.Context, a *appointment.Appointment, fn func(mongo.SessionContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sess, err := r.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	lockID := a.PractitionerID.String() + "|" + formatDate(a.Date)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		_, err := r.locks.UpdateOne(sc,
			bson.M{"_id": lockID},
			bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"touchedAt": time.Now().UTC()}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("locking practitioner day: %w", err)
		}
		return nil, fn(sc)
	})
	return err
}

func (r *AppointmentRepository) checkSlot(ctx context.Context, a *appointment.Appointment, excludeID string) error {
	filter := bson.M{
		"practitionerId": a.PractitionerID.String(),
		"date":           formatDate(a.Date),
		"holdsSlot":      true,
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	rows, err := r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startMinute", Value: 1}}))
	if err != nil {
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

func (r *AppointmentRepository) nextNumber(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": appointmentCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocating appointment number: %w", err)
	}
	return counter.Seq, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var d appointmentDoc
	if err := r.coll.FindOne(ctx, liveByID(id.String())).Decode(&d); err != nil {
		return nil, translate(err, "getting appointment")
	}
	return d.toDomain()
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	q.Normalize()
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"deletedAt": nil}
	if q.PatientID != nil {
		filter["patientId"] = q.PatientID.String()
	}
	if q.PractitionerID != nil {
		filter["practitionerId"] = q.PractitionerID.String()
	}
	if q.Status != nil {
		filter["status"] = string(*q.Status)
	}
	if q.Type != nil {
		filter["type"] = string(*q.Type)
	}
	dateRange := bson.M{}
	if q.DateFrom != nil {
		dateRange["$gte"] = formatDate(*q.DateFrom)
	}
	if q.DateTo != nil {
		dateRange["$lte"] = formatDate(*q.DateTo)
	}
	if len(dateRange) > 0 {
		filter["date"] = dateRange
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "startMinute", Value: 1}, {Key: "createdAt", Value: 1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.PageSize))
	list, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	return appointment.NewPage(list, total, q), nil
}

func (r *AppointmentRepository) ListForDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"practitionerId": practitionerID.String(),
		"date":           formatDate(date),
		"deletedAt":      nil,
	}
	list, err := r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "startMinute", Value: 1}, {Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing day bookings: %w", err)
	}
	return list, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment, from appointment.Status) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	a.UpdatedAt = time.Now().UTC()
	d := toDoc(a)
	update := bson.M{"$set": bson.M{
		"status":             d.Status,
		"holdsSlot":          d.HoldsSlot,
		"notes":              d.Notes,
		"confirmedAt":        d.ConfirmedAt,
		"startedAt":          d.StartedAt,
		"cancelledAt":        d.CancelledAt,
		"cancellationReason": d.CancellationReason,
		"cancelledBy":        d.CancelledBy,
		"completedAt":        d.CompletedAt,
		"completionNotes":    d.CompletionNotes,
		"noShowAt":           d.NoShowAt,
		"updatedBy":          d.UpdatedBy,
		"updatedAt":          d.UpdatedAt,
	}}
	res, err := r.coll.UpdateOne(ctx, liveWithStatus(d.ID, from), update)
	if err != nil {
		return fmt.Errorf("updating appointment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missingOrChanged(ctx, d.ID)
	}
	return nil
}

func (r *AppointmentRepository) SoftDelete(ctx context.Context, id uuid.UUID, deletedBy uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"deletedAt": now,
		"updatedAt": now,
		"updatedBy": deletedBy.String(),
		"holdsSlot": false,
	}}
	res, err := r.coll.UpdateOne(ctx, liveByID(id.String()), update)
	if err != nil {
		return fmt.Errorf("deleting appointment: %w", err)
	}
	if res.MatchedCount == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (r *AppointmentRepository) ListOverdue(ctx context.Context, day time.Time, endMinute int, limit int) ([]*appointment.Appointment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	d := formatDate(day)
	filter := bson.M{
		"deletedAt": nil,
		"status":    bson.M{"$in": bson.A{string(appointment.StatusScheduled), string(appointment.StatusConfirmed)}},
		"$or": bson.A{
			bson.M{"date": bson.M{"$lt": d}},
			bson.M{"date": d, "endMinute": bson.M{"$lte": endMinute}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "startMinute", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	list, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing overdue appointments: %w", err)
	}
	return list, nil
}

func (r *AppointmentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*appointment.Appointment, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []*appointment.Appointment{}
	for cursor.Next(ctx) {
		var d appointmentDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("decoding appointment: %w", err)
		}
		a, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, cursor.Err()
}

func liveByID(id string) bson.M {
	return bson.M{"_id": id, "deletedAt": nil}
}

func liveWithStatus(id string, status appointment.Status) bson.M {
	f := liveByID(id)
	f["status"] = string(status)
	return f
}

// missingOrChanged explains a conditional write that matched no document.
func (r *AppointmentRepository) missingOrChanged(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, liveByID(id))
	if err != nil {
		return fmt.Errorf("looking up appointment: %w", err)
	}
	if n == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return appointment.ErrStatusChanged
}

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
	case errors.Is(err, mongo.ErrNoDocuments):
		return appointment.ErrAppointmentNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, appointment.ErrAppointmentConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
