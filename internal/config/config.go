package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ICEServer mirrors one entry of the peer-connectivity document handed to
// players. Credentials are optional.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode                string        `mapstructure:"mode"`
	Port                int           `mapstructure:"port"`
	ControlPort         int           `mapstructure:"control_port"`
	ClientPingPeriod    time.Duration `mapstructure:"client_ping_period"`
	StreamerPingTimeout time.Duration `mapstructure:"streamer_ping_timeout"`
	LivenessWindow      time.Duration `mapstructure:"liveness_window"`
	ForceReady          bool          `mapstructure:"force_ready"`
	ICEServers          []ICEServer   `mapstructure:"ice_servers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("control_port", 9999)
	v.SetDefault("client_ping_period", "30s")
	v.SetDefault("streamer_ping_timeout", "31s")
	v.SetDefault("liveness_window", "60s")
	v.SetDefault("force_ready", false)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Control: %d\n", cfg.Mode, cfg.Port, cfg.ControlPort)
	return &cfg, nil
}
