package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/couchcryptid/station-data-ingest/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_PassesOnCleanFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := domain.NewStationConfig("SM 9", 9.5, 3.9, []domain.Parameter{domain.AirTemperature}, nil)
	require.NoError(t, err)

	data := "Date\tTime\tAIR TEMPERATURE\tSD\n" +
		"14/03/2025\t10:00:00\t26\t0\n" +
		"14/03/2025\t10:05:00\t27\t0\n" +
		"14/03/2025\t10:10:00\t9999.999\t0\n"
	require.NoError(t, os.WriteFile(source.FilePath(dir, st.ID, domain.AirTemperature), []byte(data), 0o600))

	var out bytes.Buffer
	phases, err := validate(dir, t.TempDir(), []domain.StationConfig{st}, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	require.NoError(t, err)

	for _, p := range phases {
		assert.True(t, p.passed(), "%s: %v", p.name, p.errors)
	}
	assert.Contains(t, out.String(), "SM 9")
}

func TestValidate_FlagsStationWithoutFiles(t *testing.T) {
	st, err := domain.NewStationConfig("SM 9", 9.5, 3.9, []domain.Parameter{domain.Surge}, nil)
	require.NoError(t, err)

	phases, err := validate(t.TempDir(), t.TempDir(), []domain.StationConfig{st}, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	require.NoError(t, err)

	require.NotEmpty(t, phases)
	assert.False(t, phases[0].passed())
	assert.Contains(t, phases[0].errors[0], "SM 9: no readings")
}
