package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

type Appointment struct {
	Base
	PatientID      uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorName     string            `db:"doctor_name" json:"doctor_name"`
	Specialization string            `db:"specialization" json:"specialization"`
	DateTime       time.Time         `db:"date_time" json:"date_time"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Patient        *PatientSummary   `db:"-" json:"patient,omitempty"`
}

type CreateAppointmentRequest struct {
	PatientID      string `json:"patient_id" validate:"notblank,uuid"`
	DoctorName     string `json:"doctor_name" validate:"notblank,max=25"`
	Specialization string `json:"specialization" validate:"notblank,max=25"`
	DateTime       string `json:"date_time" validate:"notblank,timestamp,future"`
}

func (r *CreateAppointmentRequest) Trim() {
	r.PatientID = strings.TrimSpace(r.PatientID)
	r.DoctorName = strings.TrimSpace(r.DoctorName)
	r.Specialization = strings.TrimSpace(r.Specialization)
	r.DateTime = strings.TrimSpace(r.DateTime)
}

type UpdateAppointmentRequest struct {
	DoctorName     *string `json:"doctor_name" validate:"omitnil,notblank,max=25"`
	Specialization *string `json:"specialization" validate:"omitnil,notblank,max=25"`
	DateTime       *string `json:"date_time" validate:"omitnil,notblank,timestamp,future"`
	Status         *string `json:"status" validate:"omitnil,notblank,oneof=scheduled cancelled completed"`
}

func (r *UpdateAppointmentRequest) Trim() {
	trimPtr(r.DoctorName)
	trimPtr(r.Specialization)
	trimPtr(r.DateTime)
	trimPtr(r.Status)
}

// AppointmentPatch is a validated partial update. Only non-nil fields are applied.
type AppointmentPatch struct {
	DoctorName     *string
	Specialization *string
	DateTime       *time.Time
	Status         *AppointmentStatus
}

// TouchesSlot reports whether the patch moves the appointment to another slot.
func (p AppointmentPatch) TouchesSlot() bool {
	return p.DoctorName != nil || p.DateTime != nil
}

// Effective returns the doctor and time the appointment would hold after the patch.
func (p AppointmentPatch) Effective(a *Appointment) (string, time.Time) {
	doctor, at := a.DoctorName, a.DateTime
	if p.DoctorName != nil {
		doctor = *p.DoctorName
	}
	if p.DateTime != nil {
		at = *p.DateTime
	}
	return doctor, at
}

func (p AppointmentPatch) Apply(a *Appointment) {
	if p.DoctorName != nil {
		a.DoctorName = *p.DoctorName
	}
	if p.Specialization != nil {
		a.Specialization = *p.Specialization
	}
	if p.DateTime != nil {
		a.DateTime = *p.DateTime
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
}

// AppointmentFilter selects appointments for listing. Name filters are
// case-insensitive substring matches.
type AppointmentFilter struct {
	PatientID      *uuid.UUID
	DoctorName     string
	Specialization string
	Order          SortOrder
	Pagination
}
