package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

const (
	uniqueViolation     pq.ErrorCode = "23505"
	foreignKeyViolation pq.ErrorCode = "23503"

	constraintPatientSlot        = "appointments_patient_id_date_time_key"
	constraintDoctorSlot         = "appointments_doctor_name_date_time_key"
	constraintAppointmentPatient = "appointments_patient_id_fkey"
)

// mapError translates constraint violations into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case uniqueViolation:
		switch pqErr.Constraint {
		case constraintPatientSlot:
			return fmt.Errorf("%w: %s", repository.ErrPatientSlotTaken, pqErr.Message)
		case constraintDoctorSlot:
			return fmt.Errorf("%w: %s", repository.ErrDoctorSlotTaken, pqErr.Message)
		}
	case foreignKeyViolation:
		if pqErr.Constraint == constraintAppointmentPatient {
			return fmt.Errorf("%w: %s", repository.ErrPatientMissing, pqErr.Message)
		}
	}
	return err
}
