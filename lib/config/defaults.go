package config

import (
	"path/filepath"
	"time"

	"github.com/go-i2p/logger"
)

// Config carries every setting the daemon consumes, assembled from viper by
// CurrentConfig. Sections map one to one onto the config file's top-level
// keys.
type Config struct {
	// Admission holds the process-wide fallback concurrency limits.
	Admission AdmissionConfig

	// Throttle holds the per-user connect-attempt flood protection.
	Throttle ThrottleConfig

	// Control holds the HTTP control API settings.
	Control ControlConfig

	// TopologyPath is the YAML file describing groups and connections.
	// When the file does not exist the daemon starts with the built-in
	// demo topology instead of failing.
	TopologyPath string
}

// AdmissionConfig contains the default concurrency limits applied to scopes
// that leave a limit unset. Zero means unlimited throughout, matching the
// resolved limit form.
type AdmissionConfig struct {
	// MaxGroupSessions bounds total simultaneous sessions in a group
	// without an explicit limit.
	// Default: 0 (unlimited)
	MaxGroupSessions int

	// MaxGroupSessionsPerUser bounds one user's simultaneous sessions in
	// such a group.
	// Default: 0 (unlimited)
	MaxGroupSessionsPerUser int

	// MaxConnectionSessions bounds total simultaneous sessions on a leaf
	// connection without an explicit limit.
	// Default: 0 (unlimited)
	MaxConnectionSessions int

	// MaxConnectionSessionsPerUser bounds one user's simultaneous sessions
	// on such a connection.
	// Default: 0 (unlimited)
	MaxConnectionSessionsPerUser int
}

// ThrottleConfig contains the per-user connect-attempt token bucket. The
// throttle sits in front of admission: a throttled attempt never takes a
// reservation.
type ThrottleConfig struct {
	// Enabled turns the throttle on.
	// Default: false
	Enabled bool

	// AttemptsPerMinute is the sustained connect-attempt rate allowed per
	// user.
	// Default: 60
	AttemptsPerMinute int

	// Burst is the number of attempts a user may make at once before the
	// sustained rate applies.
	// Default: 10
	Burst int

	// IdleEviction is how long a user's bucket survives without activity
	// before the janitor drops it.
	// Default: 10 minutes
	IdleEviction time.Duration
}

// ControlConfig contains the HTTP control API settings.
type ControlConfig struct {
	// Enabled determines whether the control server starts.
	// Default: true
	Enabled bool

	// Address is the listen address, "host:port".
	// Binding beyond localhost exposes session metadata to the network.
	// Default: "localhost:8422"
	Address string

	// AuthToken, when non-empty, is required as a bearer token on every
	// /api request. Empty disables authentication.
	// Default: "" (no authentication; localhost binding assumed)
	AuthToken string

	// ShutdownTimeout bounds the drain period on Stop.
	// Default: 5 seconds
	ShutdownTimeout time.Duration
}

// Defaults returns the default configuration. It centralizes every default
// so the complete set stays discoverable in one place.
func Defaults() Config {
	return Config{
		Admission:    buildAdmissionDefaults(),
		Throttle:     buildThrottleDefaults(),
		Control:      buildControlDefaults(),
		TopologyPath: filepath.Join(BuildConngateDirPath(), "topology.yaml"),
	}
}

func buildAdmissionDefaults() AdmissionConfig {
	// Unlimited everywhere: limits are opt-in per group or connection, the
	// defaults only catch deployments that want a blanket cap.
	return AdmissionConfig{
		MaxGroupSessions:             0,
		MaxGroupSessionsPerUser:      0,
		MaxConnectionSessions:        0,
		MaxConnectionSessionsPerUser: 0,
	}
}

func buildThrottleDefaults() ThrottleConfig {
	return ThrottleConfig{
		Enabled:           false,
		AttemptsPerMinute: 60,
		Burst:             10,
		IdleEviction:      10 * time.Minute,
	}
}

func buildControlDefaults() ControlConfig {
	return ControlConfig{
		Enabled:         true,
		Address:         "localhost:8422",
		AuthToken:       "",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for values the daemon cannot run with.
// Returns an error describing the first invalid value found.
func Validate(cfg Config) error {
	validators := []func() error{
		func() error { return validateAdmission(cfg.Admission) },
		func() error { return validateThrottle(cfg.Throttle) },
		func() error { return validateControl(cfg.Control) },
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("configuration validation failed")
			return err
		}
	}
	log.WithFields(logger.Fields{
		"at":     "config.Validate",
		"reason": "all_validators_passed",
	}).Debug("configuration validated")
	return nil
}

func validateAdmission(admission AdmissionConfig) error {
	// Negative defaults have no meaning in the resolved form; zero already
	// expresses "unlimited".
	if admission.MaxGroupSessions < 0 {
		return newValidationError("Admission.MaxGroupSessions must not be negative")
	}
	if admission.MaxGroupSessionsPerUser < 0 {
		return newValidationError("Admission.MaxGroupSessionsPerUser must not be negative")
	}
	if admission.MaxConnectionSessions < 0 {
		return newValidationError("Admission.MaxConnectionSessions must not be negative")
	}
	if admission.MaxConnectionSessionsPerUser < 0 {
		return newValidationError("Admission.MaxConnectionSessionsPerUser must not be negative")
	}
	return nil
}

func validateThrottle(throttle ThrottleConfig) error {
	if !throttle.Enabled {
		return nil
	}
	if throttle.AttemptsPerMinute < 1 {
		return newValidationError("Throttle.AttemptsPerMinute must be at least 1 when the throttle is enabled")
	}
	if throttle.Burst < 1 {
		return newValidationError("Throttle.Burst must be at least 1 when the throttle is enabled")
	}
	if throttle.IdleEviction < time.Minute {
		return newValidationError("Throttle.IdleEviction must be at least 1 minute")
	}
	return nil
}

func validateControl(control ControlConfig) error {
	if !control.Enabled {
		return nil
	}
	if control.Address == "" {
		return newValidationError("Control.Address must be set when the control server is enabled")
	}
	if control.ShutdownTimeout < time.Second {
		return newValidationError("Control.ShutdownTimeout must be at least 1 second")
	}
	return nil
}

type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
