package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const appointmentColumns = `a.id, a.patient_id, a.doctor_name, a.specialization, a.date_time, a.status, a.created_at, a.updated_at`

type appointmentRepository struct {
	db sqlx.ExtContext
}

// appointmentRow is an appointment joined with its patient's name.
type appointmentRow struct {
	model.Appointment
	PatientFirstName string `db:"patient_first_name"`
	PatientLastName  string `db:"patient_last_name"`
}

func (row *appointmentRow) toModel() *model.Appointment {
	apt := row.Appointment
	normalizeAppointment(&apt)
	apt.Patient = &model.PatientSummary{
		ID:        apt.PatientID,
		FirstName: row.PatientFirstName,
		LastName:  row.PatientLastName,
	}
	return &apt
}

const selectWithPatient = `
	SELECT ` + appointmentColumns + `,
		p.first_name AS patient_first_name,
		p.last_name AS patient_last_name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_name, specialization,
			date_time, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorName,
		appointment.Specialization,
		appointment.DateTime,
		appointment.Status,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", mapError(err))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var row appointmentRow
	if err := sqlx.GetContext(ctx, r.db, &row, selectWithPatient+` WHERE a.id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", mapError(err))
	}
	return row.toModel(), nil
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments a WHERE a.id = $1 FOR UPDATE`

	var appointment model.Appointment
	if err := sqlx.GetContext(ctx, r.db, &appointment, query, id); err != nil {
		return nil, fmt.Errorf("failed to lock appointment: %w", mapError(err))
	}
	normalizeAppointment(&appointment)
	return &appointment, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET doctor_name = $1, specialization = $2, date_time = $3, status = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := r.db.ExecContext(ctx, query,
		appointment.DoctorName,
		appointment.Specialization,
		appointment.DateTime,
		appointment.Status,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", mapError(err))
	}
	return requireAffected(result.RowsAffected())
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return requireAffected(result.RowsAffected())
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("a.patient_id = $%d", len(args)))
	}
	if name := strings.TrimSpace(filter.DoctorName); name != "" {
		args = append(args, likePattern(name))
		where = append(where, fmt.Sprintf("a.doctor_name ILIKE $%d", len(args)))
	}
	if spec := strings.TrimSpace(filter.Specialization); spec != "" {
		args = append(args, likePattern(spec))
		where = append(where, fmt.Sprintf("a.specialization ILIKE $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(*) FROM appointments a`+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	direction := "ASC"
	if filter.Order == model.SortDesc {
		direction = "DESC"
	}

	page := filter.Pagination.Normalize()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf(`%s%s ORDER BY a.date_time %s, a.id %s LIMIT $%d OFFSET $%d`,
		selectWithPatient, clause, direction, direction, len(args)-1, len(args))

	var rows []appointmentRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}

	appointments := make([]*model.Appointment, 0, len(rows))
	for i := range rows {
		appointments = append(appointments, rows[i].toModel())
	}
	return appointments, total, nil
}

func (r *appointmentRepository) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("failed to count patient appointments: %w", err)
	}
	return count, nil
}

func (r *appointmentRepository) PatientSlotTaken(ctx context.Context, patientID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	return r.slotTaken(ctx, "patient_id", patientID, at, exclude)
}

func (r *appointmentRepository) DoctorSlotTaken(ctx context.Context, doctorName string, at time.Time, exclude *uuid.UUID) (bool, error) {
	return r.slotTaken(ctx, "doctor_name", doctorName, at, exclude)
}

func (r *appointmentRepository) slotTaken(ctx context.Context, column string, subject interface{}, at time.Time, exclude *uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM appointments WHERE ` + column + ` = $1 AND date_time = $2`
	args := []interface{}{subject, at}
	if exclude != nil {
		query += ` AND id <> $3`
		args = append(args, *exclude)
	}
	query += `)`

	var taken bool
	if err := sqlx.GetContext(ctx, r.db, &taken, query, args...); err != nil {
		return false, fmt.Errorf("failed to check %s slot: %w", column, err)
	}
	return taken, nil
}

func normalizeAppointment(a *model.Appointment) {
	a.DateTime = a.DateTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
}
