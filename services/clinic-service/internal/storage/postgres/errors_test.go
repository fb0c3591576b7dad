package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/migrations"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		kind       model.ErrorKind
		code       string
	}{
		{"no rows", pgx.ErrNoRows, "", model.KindNotFound, "appointment_not_found"},
		{"slot taken", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "appointments_scheduled_slot_uidx"}, "appointments_scheduled_slot_uidx", model.KindSlotConflict, "slot_conflict"},
		{"duplicate phone", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "patients_phone_uidx"}, "patients_phone_uidx", model.KindDuplicatePatient, "duplicate_phone"},
		{"duplicate email", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "patients_email_uidx"}, "patients_email_uidx", model.KindDuplicatePatient, "duplicate_email"},
		{"second active weekday", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "work_schedule_active_day_uidx"}, "work_schedule_active_day_uidx", model.KindConflict, "schedule_day_exists"},
		{"other unique", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "something_else"}, "", model.KindConflict, "conflict"},
		{"overlapping range", &pgconn.PgError{Code: codeExclusionViolation, ConstraintName: "unavailable_time_ranges_no_overlap"}, "unavailable_time_ranges_no_overlap", model.KindConflict, "time_range_overlap"},
		{"missing reference", &pgconn.PgError{Code: codeForeignKeyViolation, ConstraintName: "appointments_visit_type_id_fkey"}, "", model.KindInvalidReference, "invalid_reference"},
	}

	schema := migrationSQL(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.constraint != "" {
				assert.Contains(t, schema, tc.constraint, "constraint missing from migrations")
			}
			err := mapError(fmt.Errorf("exec: %w", tc.err), "appointment")
			var merr *model.Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tc.kind, merr.Kind)
			assert.Equal(t, tc.code, merr.Code)
		})
	}
}

func TestMapErrorPassesThroughUnknown(t *testing.T) {
	assert.NoError(t, mapError(nil, "patient"))

	raw := &pgconn.PgError{Code: "57014"}
	assert.Same(t, raw, mapError(raw, "patient"))
	assert.Equal(t, model.KindInternal, model.KindOf(mapError(raw, "patient")))

	plain := errors.New("connection reset")
	assert.Same(t, plain, mapError(plain, "patient"))
}

func migrationSQL(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	err := fs.WalkDir(migrations.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return err
		}
		data, err := fs.ReadFile(migrations.FS, path)
		if err != nil {
			return err
		}
		b.Write(data)
		return nil
	})
	require.NoError(t, err)
	return b.String()
}
