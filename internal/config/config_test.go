package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[spot]
feed_id = "0abc"

[vereinsflieger]
login = "pilot@example.org"
password = "secret"
app_key = "key"

[pilot]
name = "Hans Muster"

[flight]
callsign = "HB-1234"
start_type = "E"

[[airports]]
name = "Grenchen"
time_zone = "Europe/Zurich"
tow_callsign = "HB-EQM"
latitude = 47.1816
longitude = 7.4172
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidateFillsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "CUSTOM", cfg.Spot.TakeoffMessageType)
	assert.Equal(t, "OK", cfg.Spot.LandingMessageType)
	assert.Equal(t, 30, cfg.Spot.RequestTimeoutSeconds)
	assert.Equal(t, "Grenchen", cfg.Flight.DefaultAirport)
	assert.Equal(t, 30*time.Minute, cfg.MatchTolerance())
	assert.Equal(t, 50.0, cfg.Flight.ResolveRadiusKm)
	assert.Equal(t, "data/spotlog.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 600, cfg.Storage.LockLeaseSeconds)
	assert.Equal(t, time.Duration(0), cfg.Retention())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 1, cfg.AirportRegistry().Len())
}

func TestLoadAppendsCSVAirports(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "airports.csv",
		"name,time_zone,tow_callsign,flight_type_id,charge_mode,latitude,longitude\n"+
			"Amlikon,Europe/Zurich,,10,1,47.5667,9.0500\n")
	path := writeFile(t, dir, "config.toml", minimalConfig+"\n[airports_db]\npath = \""+filepath.ToSlash(csvPath)+"\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Airports, 2)
	assert.Equal(t, "Grenchen", cfg.Airports[0].Name)
	assert.Equal(t, "Amlikon", cfg.Airports[1].Name)
	assert.Equal(t, "10", cfg.Airports[1].FlightTypeID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadWithFallbackUsesPreferredPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.toml", minimalConfig)

	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, "0abc", cfg.Spot.FeedID)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing feed", func(c *Config) { c.Spot.FeedID = "" }},
		{"same message types", func(c *Config) { c.Spot.TakeoffMessageType = "OK" }},
		{"missing credentials", func(c *Config) { c.Vereinsflieger.Password = "" }},
		{"missing pilot", func(c *Config) { c.Pilot.Name = " " }},
		{"no airports", func(c *Config) { c.Airports = nil }},
		{"bad zone", func(c *Config) { c.Airports[0].TimeZone = "Mars/Olympus" }},
		{"unknown default airport", func(c *Config) { c.Flight.DefaultAirport = "Bern" }},
		{"negative tolerance", func(c *Config) { c.Flight.MatchToleranceSeconds = -1 }},
		{"pushover without key", func(c *Config) { c.Pushover.Enabled = true }},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.toml", minimalConfig)
			cfg, err := Load(path)
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWithFallbackReportsBrokenExplicitFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.toml", "[spot\nfeed_id = ")

	_, err := LoadWithFallback(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadWithFallbackNothingFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.toml")

	_, err := LoadWithFallback(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, err.Error(), "configs/config.toml")
}
