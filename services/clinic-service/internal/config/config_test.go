package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 20*time.Minute, cfg.Clinic.SlotGranularity)
	assert.Equal(t, 12*time.Hour, cfg.Clinic.MinimumNotice)
	assert.Equal(t, time.UTC.String(), cfg.Clinic.Location.String())
	assert.Equal(t, "default", cfg.Clinic.DefaultProviderID)
	assert.Equal(t, "24:00", cfg.Clinic.DayEnd.String())
	assert.True(t, cfg.Clinic.HidePastSlots)
	assert.True(t, cfg.DB.MigrateOnStart)
	assert.Empty(t, cfg.GRPC.Port)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("CANCELLATION_MIN_NOTICE", "24h")
	t.Setenv("SLOT_GRANULARITY_MINUTES", "30")
	t.Setenv("CLINIC_TIMEZONE", "America/Argentina/Buenos_Aires")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GRPC_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Clinic.MinimumNotice)
	assert.Equal(t, 30*time.Minute, cfg.Clinic.SlotGranularity)
	assert.Equal(t, "America/Argentina/Buenos_Aires", cfg.Clinic.Location.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "9090", cfg.GRPC.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SLOT_GRANULARITY_MINUTES", "7")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	t.Setenv("PORT", "http")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "SLOT_GRANULARITY_MINUTES")
	assert.Contains(t, msg, "CLINIC_TIMEZONE")
	assert.Contains(t, msg, "PORT")
	assert.Contains(t, msg, "JWT_SECRET")
}
