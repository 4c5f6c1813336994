// Package seed fills a store with demo patients and bookings. Bookings go
// through the appointment service, so seeded data obeys the slot rules.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
	"github.com/jwalitptl/clinic-api/pkg/validator"
)

const (
	slotAttempts = 20
	slotLayout   = "2006-01-02 15:04:05"
)

var (
	Specializations = []string{"Therapist", "Cardiologist", "Dermatologist", "Dentist", "Neurologist"}

	minBirthDate = time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	maxBirthDate = time.Date(2005, 12, 31, 0, 0, 0, 0, time.UTC)

	fixtures = []model.CreatePatientRequest{
		{FirstName: "John", LastName: "Doe", BirthDate: "1990-05-10", Gender: string(model.GenderMale)},
		{FirstName: "Jane", LastName: "Smith", BirthDate: "1988-03-22", Gender: string(model.GenderFemale)},
	}
)

type PatientService interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	ListPatients(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, int, error)
}

type AppointmentService interface {
	CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error)
}

type Result struct {
	Patients     int
	Appointments int
	// Skipped counts bookings rejected because even the fallback slot was taken.
	Skipped int
}

type Seeder struct {
	patients     PatientService
	appointments AppointmentService
	slots        repository.AppointmentRepository
	faker        *gofakeit.Faker
	now          func() time.Time
}

func NewSeeder(patients PatientService, appointments AppointmentService, slots repository.AppointmentRepository, seed int64) *Seeder {
	return &Seeder{
		patients:     patients,
		appointments: appointments,
		slots:        slots,
		faker:        gofakeit.New(uint64(seed)),
		now:          time.Now,
	}
}

// Run creates n random patients plus the John Doe and Jane Smith fixtures,
// then books one to three future appointments for each of them.
func (s *Seeder) Run(ctx context.Context, n int) (Result, error) {
	var res Result

	var created []*model.Patient
	for _, req := range fixtures {
		p, err := s.ensureFixture(ctx, req)
		if err != nil {
			return res, err
		}
		if p != nil {
			created = append(created, p)
		}
	}
	for i := 0; i < n; i++ {
		req := s.randomPatient()
		p, err := s.patients.CreatePatient(ctx, &req)
		if err != nil {
			return res, fmt.Errorf("failed to create patient %d: %w", i+1, err)
		}
		created = append(created, p)
	}
	res.Patients = len(created)

	for _, p := range created {
		booked, skipped, err := s.bookFor(ctx, p)
		if err != nil {
			return res, err
		}
		res.Appointments += booked
		res.Skipped += skipped
	}

	log.Ctx(ctx).Info().
		Int("patients", res.Patients).
		Int("appointments", res.Appointments).
		Int("skipped", res.Skipped).
		Msg("seed complete")
	return res, nil
}

// ensureFixture returns nil when a patient with the same name already exists.
func (s *Seeder) ensureFixture(ctx context.Context, req model.CreatePatientRequest) (*model.Patient, error) {
	existing, _, err := s.patients.ListPatients(ctx, model.PatientFilter{
		Search:     req.LastName,
		Pagination: model.Pagination{Page: 1, PerPage: model.MaxPerPage},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up fixture %s %s: %w", req.FirstName, req.LastName, err)
	}
	for _, p := range existing {
		if strings.EqualFold(p.FirstName, req.FirstName) && strings.EqualFold(p.LastName, req.LastName) {
			return nil, nil
		}
	}
	p, err := s.patients.CreatePatient(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture %s %s: %w", req.FirstName, req.LastName, err)
	}
	return p, nil
}

func (s *Seeder) bookFor(ctx context.Context, p *model.Patient) (booked, skipped int, err error) {
	count := s.faker.IntRange(1, 3)
	taken := map[time.Time]bool{}

	for i := 0; i < count; i++ {
		doctor := "Dr. " + s.faker.LastName()
		at, err := s.pickFreeSlot(ctx, doctor, taken)
		if err != nil {
			return booked, skipped, err
		}

		_, err = s.appointments.CreateAppointment(ctx, &model.CreateAppointmentRequest{
			PatientID:      p.ID.String(),
			DoctorName:     doctor,
			Specialization: s.faker.RandomString(Specializations),
			DateTime:       at.Format(slotLayout),
		})
		var appErr *apperrors.AppError
		switch {
		case err == nil:
			booked++
			taken[at] = true
		case errors.As(err, &appErr) && appErr.Code == apperrors.ErrConflict:
			skipped++
		default:
			return booked, skipped, fmt.Errorf("failed to book appointment for patient %s: %w", p.ID, err)
		}
	}
	return booked, skipped, nil
}

// pickFreeSlot tries random half-hour slots between 09:00 and 17:30 over the
// next 1-30 days and falls back to tomorrow 10:00.
func (s *Seeder) pickFreeSlot(ctx context.Context, doctor string, patientTaken map[time.Time]bool) (time.Time, error) {
	today := s.today()
	for try := 0; try < slotAttempts; try++ {
		day := today.AddDate(0, 0, s.faker.IntRange(1, 30))
		at := day.Add(time.Duration(s.faker.IntRange(9, 17))*time.Hour + time.Duration(30*s.faker.IntRange(0, 1))*time.Minute)

		if patientTaken[at] {
			continue
		}
		busy, err := s.slots.DoctorSlotTaken(ctx, doctor, at, nil)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to check doctor slot: %w", err)
		}
		if !busy {
			return at, nil
		}
	}
	return today.AddDate(0, 0, 1).Add(10 * time.Hour), nil
}

func (s *Seeder) randomPatient() model.CreatePatientRequest {
	return model.CreatePatientRequest{
		FirstName: s.faker.FirstName(),
		LastName:  s.faker.LastName(),
		BirthDate: s.faker.DateRange(minBirthDate, maxBirthDate).Format(validator.DateLayout),
		Gender:    s.faker.Gender(),
	}
}

func (s *Seeder) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
