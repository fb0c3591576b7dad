// Package patients manages the people appointments are booked for.
package patients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

var (
	nameRe  = regexp.MustCompile(`^\p{L}[\p{L}\p{M} ]{0,49}$`)
	phoneRe = regexp.MustCompile(`^\+?[\d\s\-()]{10,20}$`)

	validate = newValidator()
)

// Input is the canonical patient payload after HTTP decoding. Fields are
// checked in declaration order and the first failure is reported.
type Input struct {
	FirstName string `validate:"required,max=50,personname"`
	LastName  string `validate:"required,max=50,personname"`
	Phone     string `validate:"required,phone"`
	Email     string `validate:"omitempty,email"`
	BirthDate string `validate:"omitempty,datetime=2006-01-02"`
}

// fieldErrors maps an Input field to the error reported when it fails.
var fieldErrors = map[string]*model.Error{
	"FirstName": model.Validation("invalid_first_name", "first name must be 1-50 letters"),
	"LastName":  model.Validation("invalid_last_name", "last name must be 1-50 letters"),
	"Phone":     model.Validation("invalid_phone", "phone number must have 10-20 digits"),
	"Email":     model.Validation("invalid_email", "email address is invalid"),
	"BirthDate": model.Validation("invalid_birth_date", "birth date must be YYYY-MM-DD"),
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	rules := map[string]validator.Func{
		"personname": func(fl validator.FieldLevel) bool {
			return nameRe.MatchString(fl.Field().String())
		},
		"phone": func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return phoneRe.MatchString(s) && countDigits(s) >= 10
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if e, ok := fieldErrors[verrs[0].StructField()]; ok {
			return &model.Error{Kind: e.Kind, Code: e.Code, Message: e.Message}
		}
	}
	return model.Validation("invalid_patient", err.Error())
}

type Service struct {
	store  storage.PatientStore
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store storage.PatientStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Validate normalises in into a Patient or reports the first invalid field.
func Validate(in Input, now time.Time) (model.Patient, error) {
	in = Input{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		BirthDate: strings.TrimSpace(in.BirthDate),
	}
	if err := validate.Struct(in); err != nil {
		return model.Patient{}, validationError(err)
	}
	p := model.Patient{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     strings.ToLower(in.Email),
		Phone:     in.Phone,
	}
	if in.BirthDate != "" {
		d, err := model.ParseDate(in.BirthDate)
		if err != nil {
			return model.Patient{}, model.Validation("invalid_birth_date", "birth date must be YYYY-MM-DD")
		}
		if d.After(model.DateOf(now)) {
			return model.Patient{}, model.Validation("invalid_birth_date", "birth date cannot be in the future")
		}
		p.BirthDate = &d
	}
	return p, nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// SamePhone compares two phone numbers by their digits only.
func SamePhone(a, b string) bool {
	da, db := digits(a), digits(b)
	return da != "" && da == db
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Service) Create(ctx context.Context, in Input) (model.Patient, error) {
	p, err := Validate(in, s.now())
	if err != nil {
		return model.Patient{}, err
	}
	if err := s.store.CreatePatient(ctx, &p); err != nil {
		return model.Patient{}, err
	}
	s.logger.Info("patient created", "patient_id", p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Patient, error) {
	return s.store.GetPatient(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Patient, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListPatients(ctx, limit, offset)
}

// Update replaces the fields present in in; blank fields keep their value.
func (s *Service) Update(ctx context.Context, id string, in Input) (model.Patient, error) {
	cur, err := s.store.GetPatient(ctx, id)
	if err != nil {
		return model.Patient{}, err
	}
	merged := Input{
		FirstName: firstNonEmpty(in.FirstName, cur.FirstName),
		LastName:  firstNonEmpty(in.LastName, cur.LastName),
		Email:     firstNonEmpty(in.Email, cur.Email),
		Phone:     firstNonEmpty(in.Phone, cur.Phone),
		BirthDate: in.BirthDate,
	}
	if merged.BirthDate == "" && cur.BirthDate != nil {
		merged.BirthDate = model.FormatDate(*cur.BirthDate)
	}
	p, err := Validate(merged, s.now())
	if err != nil {
		return model.Patient{}, err
	}
	p.ID = cur.ID
	if err := s.store.UpdatePatient(ctx, &p); err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.logger.Info("patient deleted", "patient_id", id)
	return nil
}

// FindOrCreateByPhone returns the patient owning in.Phone, creating one from
// in when nobody does. created reports which happened.
func (s *Service) FindOrCreateByPhone(ctx context.Context, in Input) (p model.Patient, created bool, err error) {
	phone := strings.TrimSpace(in.Phone)
	if err := validate.Var(phone, "required,phone"); err != nil {
		return model.Patient{}, false, model.Validation("invalid_phone", "phone number must have 10-20 digits")
	}
	p, err = s.store.FindPatientByPhone(ctx, phone)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Patient{}, false, err
	}

	p, err = s.Create(ctx, in)
	if errors.Is(err, model.ErrDuplicatePatient) {
		// Lost a race with another request for the same phone.
		if existing, ferr := s.store.FindPatientByPhone(ctx, phone); ferr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return model.Patient{}, false, err
	}
	return p, true, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
