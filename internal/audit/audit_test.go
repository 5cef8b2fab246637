package audit

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRecordFailureLogsWarnWithFields(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(zerolog.New(&buf))
	rec.WithNow(func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) })

	rec.Record(Event{
		Name:      EventLogin,
		Success:   false,
		Email:     "dr.house@hospital.org",
		IP:        "203.0.113.7",
		UserAgent: "curl/8.0",
		Path:      "/api/v1/auth/login",
		Reason:    "invalid_credentials",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, true, entry["audit"])
	require.Equal(t, EventLogin, entry["event"])
	require.Equal(t, false, entry["success"])
	require.Equal(t, "203.0.113.7", entry["ip"])
	require.Equal(t, "invalid_credentials", entry["reason"])
	require.Equal(t, "/api/v1/auth/login", entry["path"])
}

func TestRecordSuccessLogsInfo(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(zerolog.New(&buf))

	rec.Record(Event{
		Name:      EventLogin,
		Success:   true,
		AccountID: "acc-1",
		SessionID: "sess-1",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "acc-1", entry["account_id"])
	require.Equal(t, "sess-1", entry["session_id"])
}

func TestRecordRoleDeniedCarriesMetadata(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(zerolog.New(&buf))

	rec.Record(Event{
		Name:    EventRoleDenied,
		Success: false,
		Metadata: map[string]string{
			"attempted_role": "PATIENT",
			"required_roles": "DOCTOR,ADMIN",
		},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "PATIENT", entry["attempted_role"])
	require.Equal(t, "DOCTOR,ADMIN", entry["required_roles"])
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	require.NotPanics(t, func() {
		rec.Record(Event{Name: EventLogin})
	})
}
