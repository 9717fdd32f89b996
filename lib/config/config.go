package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/spf13/viper"

	"github.com/conngate/conngate/lib/util"
)

var (
	// CfgFile is the explicit config file path from the --config flag.
	// Empty means the default location.
	CfgFile string

	log = logger.GetGoI2PLogger()
)

// ConngateBaseDir is the directory under $HOME holding the config file and
// the default topology location.
const ConngateBaseDir = ".conngate"

// InitConfig wires viper: config file location, environment binding,
// defaults, and first-start file creation. Called once from the CLI before
// any command runs.
func InitConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildConngateDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CONNGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	handleConfigFile()
}

// setDefaults seeds viper with the values from Defaults. Every key read by
// CurrentConfig must be seeded here so the two stay in lockstep.
func setDefaults() {
	d := Defaults()

	viper.SetDefault("admission.max_group_sessions", d.Admission.MaxGroupSessions)
	viper.SetDefault("admission.max_group_sessions_per_user", d.Admission.MaxGroupSessionsPerUser)
	viper.SetDefault("admission.max_connection_sessions", d.Admission.MaxConnectionSessions)
	viper.SetDefault("admission.max_connection_sessions_per_user", d.Admission.MaxConnectionSessionsPerUser)

	viper.SetDefault("throttle.enabled", d.Throttle.Enabled)
	viper.SetDefault("throttle.attempts_per_minute", d.Throttle.AttemptsPerMinute)
	viper.SetDefault("throttle.burst", d.Throttle.Burst)
	viper.SetDefault("throttle.idle_eviction", d.Throttle.IdleEviction)

	viper.SetDefault("control.enabled", d.Control.Enabled)
	viper.SetDefault("control.address", d.Control.Address)
	viper.SetDefault("control.auth_token", d.Control.AuthToken)
	viper.SetDefault("control.shutdown_timeout", d.Control.ShutdownTimeout)

	viper.SetDefault("topology.path", d.TopologyPath)
}

// CurrentConfig assembles a Config from the current viper state.
func CurrentConfig() Config {
	return Config{
		Admission: AdmissionConfig{
			MaxGroupSessions:             viper.GetInt("admission.max_group_sessions"),
			MaxGroupSessionsPerUser:      viper.GetInt("admission.max_group_sessions_per_user"),
			MaxConnectionSessions:        viper.GetInt("admission.max_connection_sessions"),
			MaxConnectionSessionsPerUser: viper.GetInt("admission.max_connection_sessions_per_user"),
		},
		Throttle: ThrottleConfig{
			Enabled:           viper.GetBool("throttle.enabled"),
			AttemptsPerMinute: viper.GetInt("throttle.attempts_per_minute"),
			Burst:             viper.GetInt("throttle.burst"),
			IdleEviction:      viper.GetDuration("throttle.idle_eviction"),
		},
		Control: ControlConfig{
			Enabled:         viper.GetBool("control.enabled"),
			Address:         viper.GetString("control.address"),
			AuthToken:       viper.GetString("control.auth_token"),
			ShutdownTimeout: viper.GetDuration("control.shutdown_timeout"),
		},
		TopologyPath: viper.GetString("topology.path"),
	}
}

// handleConfigFile reads the config file, creating the default one on first
// start. An explicitly named file that cannot be read is fatal; the operator
// asked for it by name.
func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Fatalf("Config file %s is not found: %s", CfgFile, err)
			} else {
				createDefaultConfig(BuildConngateDirPath())
			}
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	} else {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		log.Fatalf("Could not create config directory: %s", err)
	}

	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		log.Fatalf("Could not write default config file: %s", err)
	}

	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

// BuildConngateDirPath returns $HOME/.conngate.
func BuildConngateDirPath() string {
	return filepath.Join(util.UserHome(), ConngateBaseDir)
}
