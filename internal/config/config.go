package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yegors/spotlog/internal/airports"
	"github.com/yegors/spotlog/internal/timeconv"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Spot           SpotConfig           `toml:"spot"`           // Tracker feed settings
	Vereinsflieger VereinsfliegerConfig `toml:"vereinsflieger"` // Logbook credentials and endpoint
	Pilot          PilotConfig          `toml:"pilot"`          // Whose flights are logged
	Flight         FlightConfig         `toml:"flight"`         // Constant flight fields and matching settings
	Airports       []airports.Airport   `toml:"airports"`       // Inline airport registry
	AirportsDB     AirportsDBConfig     `toml:"airports_db"`    // Optional CSV airport registry
	Pushover       PushoverConfig       `toml:"pushover"`       // Push notifications
	NATS           NATSConfig           `toml:"nats"`           // Flight event publishing
	Storage        StorageConfig        `toml:"storage"`        // Durable local state
	Logging        LoggingConfig        `toml:"logging"`        // Application logging settings
}

// SpotConfig contains tracker feed settings
type SpotConfig struct {
	BaseURL               string `toml:"base_url"`                // Public feed API base URL
	FeedID                string `toml:"feed_id"`                 // Shared feed id
	FeedPassword          string `toml:"feed_password"`           // Only for password protected feeds
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP request timeout in seconds
	MaxRetries            int    `toml:"max_retries"`             // Retry attempts for failed requests
	TakeoffMessageType    string `toml:"takeoff_message_type"`    // messageType signalling a takeoff (default "CUSTOM")
	LandingMessageType    string `toml:"landing_message_type"`    // messageType signalling a landing (default "OK")
}

// VereinsfliegerConfig contains logbook settings
type VereinsfliegerConfig struct {
	BaseURL               string `toml:"base_url"`
	Login                 string `toml:"login"`
	Password              string `toml:"password"`
	AppKey                string `toml:"app_key"`
	ClubID                string `toml:"club_id"` // Only needed for members of several clubs
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// PilotConfig identifies the pilot whose flights are logged
type PilotConfig struct {
	Name     string `toml:"name"`      // "Firstname Surname"
	MemberID string `toml:"member_id"` // Logbook member id (uidpilot)
}

// FlightConfig contains the constant fields of every logged flight
type FlightConfig struct {
	Callsign              string  `toml:"callsign"`
	StartType             string  `toml:"start_type"`              // Logbook start type code
	DefaultAirport        string  `toml:"default_airport"`         // Used when a position is not near a known airport
	MatchToleranceSeconds int     `toml:"match_tolerance_seconds"` // Allowed departure difference when matching flights
	ResolveRadiusKm       float64 `toml:"resolve_radius_km"`       // Maximum distance to attribute a position to an airport
	NotifyProblems        bool    `toml:"notify_problems"`         // Also notify messages that could not be logged
}

// AirportsDBConfig points to a CSV airport registry
type AirportsDBConfig struct {
	Path string `toml:"path"`
}

// PushoverConfig contains push notification settings
type PushoverConfig struct {
	Enabled               bool   `toml:"enabled"`
	BaseURL               string `toml:"base_url"`
	AppToken              string `toml:"app_token"`
	UserKey               string `toml:"user_key"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// NATSConfig contains flight event publishing settings
type NATSConfig struct {
	Enabled               bool   `toml:"enabled"`
	URL                   string `toml:"url"`
	Subject               string `toml:"subject"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
}

// StorageConfig contains durable state settings
type StorageConfig struct {
	SQLitePath       string `toml:"sqlite_path"`        // State database file
	LockLeaseSeconds int    `toml:"lock_lease_seconds"` // A pass lease older than this may be taken over
	RetentionDays    int    `toml:"retention_days"`     // Forget handled message ids after this many days (0 keeps them)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" (structured) or "console" (human-readable)
	File       string `toml:"file"`         // Optional log file, rotated
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotate after this size
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Append airports from the CSV registry after the inline ones
	if err := config.loadAirportsFromCSV(); err != nil {
		return nil, fmt.Errorf("failed to load airports from CSV: %w", err)
	}

	return &config, nil
}

// loadAirportsFromCSV appends the airports listed in the CSV registry, if configured
func (c *Config) loadAirportsFromCSV() error {
	if c.AirportsDB.Path == "" {
		return nil
	}

	list, err := airports.LoadCSV(c.AirportsDB.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", c.AirportsDB.Path, err)
	}
	c.Airports = append(c.Airports, list...)
	return nil
}

// DefaultSearchPaths are tried, in order, when no config path is given
var DefaultSearchPaths = []string{"configs/config.toml", "config.toml"}

// LoadWithFallback loads the first existing file among path and DefaultSearchPaths.
// An explicit path that exists but fails to load is reported, not skipped.
func LoadWithFallback(path string) (*Config, error) {
	candidates := DefaultSearchPaths
	if path != "" {
		candidates = append([]string{path}, DefaultSearchPaths...)
	}

	tried := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if slices.Contains(tried, candidate) {
			continue
		}
		tried = append(tried, candidate)

		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		config, err := Load(candidate)
		if err != nil {
			return nil, fmt.Errorf("spotlog config %s: %w", candidate, err)
		}
		return config, nil
	}

	return nil, fmt.Errorf("no spotlog config found (tried %s)", strings.Join(tried, ", "))
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if err := c.ValidateSpot(); err != nil {
		return err
	}
	if err := c.ValidateVereinsflieger(); err != nil {
		return err
	}

	// Validate pilot
	if strings.TrimSpace(c.Pilot.Name) == "" {
		return fmt.Errorf("pilot name is required")
	}

	if err := c.ValidateAirports(); err != nil {
		return err
	}
	if err := c.ValidateFlight(); err != nil {
		return err
	}
	if err := c.ValidateNotifications(); err != nil {
		return err
	}

	// Validate storage config
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/spotlog.db"
	}
	if c.Storage.LockLeaseSeconds <= 0 {
		c.Storage.LockLeaseSeconds = 600
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage retention_days must be 0 or greater: %d", c.Storage.RetentionDays)
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}

	return nil
}

// ValidateSpot validates the tracker feed configuration
func (c *Config) ValidateSpot() error {
	if c.Spot.FeedID == "" {
		return fmt.Errorf("spot feed_id is required")
	}
	if c.Spot.RequestTimeoutSeconds == 0 {
		c.Spot.RequestTimeoutSeconds = 30
	}
	if c.Spot.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("spot request_timeout_seconds must be greater than 0: %d", c.Spot.RequestTimeoutSeconds)
	}
	if c.Spot.MaxRetries < 0 {
		return fmt.Errorf("spot max_retries must be 0 or greater: %d", c.Spot.MaxRetries)
	}
	if c.Spot.TakeoffMessageType == "" {
		c.Spot.TakeoffMessageType = "CUSTOM"
	}
	if c.Spot.LandingMessageType == "" {
		c.Spot.LandingMessageType = "OK"
	}
	if strings.EqualFold(c.Spot.TakeoffMessageType, c.Spot.LandingMessageType) {
		return fmt.Errorf("spot takeoff and landing message types must differ: %s", c.Spot.TakeoffMessageType)
	}
	return nil
}

// ValidateVereinsflieger validates the logbook configuration
func (c *Config) ValidateVereinsflieger() error {
	if c.Vereinsflieger.Login == "" || c.Vereinsflieger.Password == "" {
		return fmt.Errorf("vereinsflieger login and password are required")
	}
	if c.Vereinsflieger.AppKey == "" {
		return fmt.Errorf("vereinsflieger app_key is required")
	}
	if c.Vereinsflieger.RequestTimeoutSeconds == 0 {
		c.Vereinsflieger.RequestTimeoutSeconds = 30
	}
	if c.Vereinsflieger.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("vereinsflieger request_timeout_seconds must be greater than 0: %d", c.Vereinsflieger.RequestTimeoutSeconds)
	}
	return nil
}

// ValidateAirports checks every registry entry
func (c *Config) ValidateAirports() error {
	if len(c.Airports) == 0 {
		return fmt.Errorf("at least one airport must be configured ([[airports]] or airports_db path)")
	}

	seen := make(map[string]bool)
	for _, a := range c.Airports {
		if a.Name == "" {
			return fmt.Errorf("airport without name")
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			return fmt.Errorf("duplicate airport: %s", a.Name)
		}
		seen[key] = true

		if _, err := timeconv.LoadZone(a.TimeZone); err != nil {
			return fmt.Errorf("airport %s: %w", a.Name, err)
		}
		if a.Latitude < -90 || a.Latitude > 90 || a.Longitude < -180 || a.Longitude > 180 {
			return fmt.Errorf("airport %s: coordinates out of range: %f,%f", a.Name, a.Latitude, a.Longitude)
		}
	}
	return nil
}

// ValidateFlight validates the flight defaults; airports must be validated first
func (c *Config) ValidateFlight() error {
	if c.Flight.Callsign == "" {
		return fmt.Errorf("flight callsign is required")
	}
	if c.Flight.DefaultAirport == "" {
		c.Flight.DefaultAirport = c.Airports[0].Name
	}
	if _, ok := c.AirportRegistry().Lookup(c.Flight.DefaultAirport); !ok {
		return fmt.Errorf("flight default_airport %s is not a configured airport", c.Flight.DefaultAirport)
	}
	if c.Flight.MatchToleranceSeconds == 0 {
		c.Flight.MatchToleranceSeconds = 1800
	}
	if c.Flight.MatchToleranceSeconds < 0 {
		return fmt.Errorf("flight match_tolerance_seconds must be greater than 0: %d", c.Flight.MatchToleranceSeconds)
	}
	if c.Flight.ResolveRadiusKm == 0 {
		c.Flight.ResolveRadiusKm = airports.DefaultRadiusKm
	}
	if c.Flight.ResolveRadiusKm < 0 {
		return fmt.Errorf("flight resolve_radius_km must be greater than 0: %f", c.Flight.ResolveRadiusKm)
	}
	return nil
}

// ValidateNotifications validates the Pushover and NATS sections
func (c *Config) ValidateNotifications() error {
	if c.Pushover.Enabled {
		if c.Pushover.AppToken == "" || c.Pushover.UserKey == "" {
			return fmt.Errorf("pushover app_token and user_key are required when pushover is enabled")
		}
		if c.Pushover.RequestTimeoutSeconds <= 0 {
			c.Pushover.RequestTimeoutSeconds = 10
		}
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats url is required when nats is enabled")
		}
		if c.NATS.Subject == "" {
			c.NATS.Subject = "spotlog.flights"
		}
		if c.NATS.ConnectTimeoutSeconds <= 0 {
			c.NATS.ConnectTimeoutSeconds = 5
		}
	}
	return nil
}

// AirportRegistry builds the resolver registry from the configured airports
func (c *Config) AirportRegistry() *airports.Registry {
	return airports.NewRegistry(c.Airports, c.Flight.ResolveRadiusKm)
}

// MatchTolerance returns the flight match window as a duration
func (c *Config) MatchTolerance() time.Duration {
	return time.Duration(c.Flight.MatchToleranceSeconds) * time.Second
}

// Retention returns how long handled message ids are kept, zero meaning forever
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}
