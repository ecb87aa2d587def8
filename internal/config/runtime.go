package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/use-go/ptzctl/camera"
)

// EnvPrefix prefixes every runtime variable
const EnvPrefix = "PTZCTL"

// MQTT is the optional status publisher
type MQTT struct {
	Host     string
	Port     int
	Topic    string
	ClientID string
	Username string
	Password string
}

// Enabled reports whether a broker is configured
func (m MQTT) Enabled() bool {
	return m.Host != ""
}

// Config is the runtime configuration of the CLI and the server
type Config struct {
	ProbeTimeout         time.Duration
	CommandTimeout       time.Duration
	AltUser              string
	SkipUnreachablePorts bool
	WSSecurity           bool
	InsecureTLS          bool
	LogLevel             string
	LogFormat            string
	Listen               string
	MQTT                 MQTT
}

// LoadRuntime loads the .env files that exist, without overriding variables
// already set, then reads PTZCTL_* from the environment. With no files the
// .env in the working directory is tried. Timeouts are clamped.
func LoadRuntime(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Annotatef(err, "load %s", f)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("probe_timeout", camera.DefaultProbeTimeout)
	v.SetDefault("command_timeout", camera.DefaultCommandTimeout)
	v.SetDefault("insecure_tls", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("listen", ":8088")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic", "ptzctl/cameras")
	v.SetDefault("mqtt.client_id", "ptzctl")

	cfg := Config{
		ProbeTimeout:         camera.ClampProbeTimeout(v.GetDuration("probe_timeout")),
		CommandTimeout:       camera.ClampCommandTimeout(v.GetDuration("command_timeout")),
		AltUser:              v.GetString("alt_user"),
		SkipUnreachablePorts: v.GetBool("skip_unreachable"),
		WSSecurity:           v.GetBool("ws_security"),
		InsecureTLS:          v.GetBool("insecure_tls"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		Listen:               v.GetString("listen"),
		MQTT: MQTT{
			Host:     v.GetString("mqtt.host"),
			Port:     v.GetInt("mqtt.port"),
			Topic:    strings.TrimSuffix(v.GetString("mqtt.topic"), "/"),
			ClientID: v.GetString("mqtt.client_id"),
			Username: v.GetString("mqtt.username"),
			Password: v.GetString("mqtt.password"),
		},
	}
	if cfg.MQTT.Enabled() && (cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535) {
		return Config{}, errors.Errorf("%s_MQTT_PORT %d out of range", EnvPrefix, cfg.MQTT.Port)
	}
	return cfg, nil
}
