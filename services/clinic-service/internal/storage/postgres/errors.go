package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeExclusionViolation  = "23P01"
)

// mapError translates driver errors into model errors. entity names the row
// kind for NotFound.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NotFound(entity)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case "appointments_scheduled_slot_uidx":
			return &model.Error{Kind: model.KindSlotConflict, Code: "slot_conflict", Message: "slot is already booked", Err: err}
		case "patients_phone_uidx":
			return model.DuplicatePatient("phone")
		case "patients_email_uidx":
			return model.DuplicatePatient("email")
		case "work_schedule_active_day_uidx":
			return model.Conflict("schedule_day_exists", "an active schedule already exists for this weekday")
		default:
			return &model.Error{Kind: model.KindConflict, Code: "conflict", Message: "conflicts with existing data", Err: err}
		}
	case codeExclusionViolation:
		return &model.Error{Kind: model.KindConflict, Code: "time_range_overlap", Message: "range overlaps an existing unavailable time", Err: err}
	case codeForeignKeyViolation:
		return &model.Error{Kind: model.KindInvalidReference, Code: "invalid_reference", Message: "referenced row does not exist", Err: err}
	}
	return err
}
