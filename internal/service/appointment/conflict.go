package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictKind says which slot an appointment would collide on.
type ConflictKind int

const (
	ConflictNone ConflictKind = iota
	ConflictPatient
	ConflictDoctor
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictPatient:
		return "patient"
	case ConflictDoctor:
		return "doctor"
	default:
		return "none"
	}
}

// Message is the caller-facing text for the conflict.
func (k ConflictKind) Message() string {
	switch k {
	case ConflictPatient:
		return MsgPatientConflict
	case ConflictDoctor:
		return MsgDoctorConflict
	default:
		return ""
	}
}

// Slot is the candidate (patient, doctor, instant) an appointment would take.
// Exclude skips the appointment being moved.
type Slot struct {
	PatientID  uuid.UUID
	DoctorName string
	DateTime   time.Time
	Exclude    *uuid.UUID
}

// SlotReader is the part of the appointment store the checker reads.
type SlotReader interface {
	PatientSlotTaken(ctx context.Context, patientID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error)
	DoctorSlotTaken(ctx context.Context, doctorName string, at time.Time, exclude *uuid.UUID) (bool, error)
}

// ConflictChecker decides whether a slot is free. Matching is on exact
// timestamp equality. It has no side effects and must be given a reader bound
// to the same transaction as the write that follows.
type ConflictChecker struct{}

// Check evaluates the patient slot first and the doctor slot second.
func (ConflictChecker) Check(ctx context.Context, r SlotReader, slot Slot) (ConflictKind, error) {
	taken, err := r.PatientSlotTaken(ctx, slot.PatientID, slot.DateTime, slot.Exclude)
	if err != nil {
		return ConflictNone, fmt.Errorf("failed to check patient slot: %w", err)
	}
	if taken {
		return ConflictPatient, nil
	}

	taken, err = r.DoctorSlotTaken(ctx, slot.DoctorName, slot.DateTime, slot.Exclude)
	if err != nil {
		return ConflictNone, fmt.Errorf("failed to check doctor slot: %w", err)
	}
	if taken {
		return ConflictDoctor, nil
	}
	return ConflictNone, nil
}

func (c ConflictChecker) HasConflict(ctx context.Context, r SlotReader, slot Slot) (bool, error) {
	kind, err := c.Check(ctx, r, slot)
	return kind != ConflictNone, err
}
