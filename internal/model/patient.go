package model

import (
	"strings"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Patient struct {
	Base
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	BirthDate Date   `db:"birth_date" json:"birth_date"`
	Gender    Gender `db:"gender" json:"gender"`
}

// PatientSummary is the patient projection embedded in appointment responses.
type PatientSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

func (p *Patient) Summary() *PatientSummary {
	return &PatientSummary{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName}
}

type CreatePatientRequest struct {
	FirstName string `json:"first_name" validate:"notblank,max=25"`
	LastName  string `json:"last_name" validate:"notblank,max=25"`
	BirthDate string `json:"birth_date" validate:"notblank,date,past_date"`
	Gender    string `json:"gender" validate:"notblank,oneof=male female"`
}

func (r *CreatePatientRequest) Trim() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.BirthDate = strings.TrimSpace(r.BirthDate)
	r.Gender = strings.TrimSpace(r.Gender)
}

// UpdatePatientRequest carries a partial patch; nil fields are left untouched.
type UpdatePatientRequest struct {
	FirstName *string `json:"first_name" validate:"omitnil,notblank,max=25"`
	LastName  *string `json:"last_name" validate:"omitnil,notblank,max=25"`
	BirthDate *string `json:"birth_date" validate:"omitnil,notblank,date,past_date"`
	Gender    *string `json:"gender" validate:"omitnil,notblank,oneof=male female"`
}

func (r *UpdatePatientRequest) Trim() {
	trimPtr(r.FirstName)
	trimPtr(r.LastName)
	trimPtr(r.BirthDate)
	trimPtr(r.Gender)
}

// PatientFilter selects patients for listing. Search matches first or last name.
type PatientFilter struct {
	Search string
	Pagination
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
