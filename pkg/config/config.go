package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// AntennaRule maps a frequency range on one rig to a preferred antenna.
// MaxFrequency is exclusive. Frequencies are in the telemetry unit (kHz).
type AntennaRule struct {
	Rig              string `yaml:"rig" json:"rig"`
	MinFrequency     int    `yaml:"min_frequency" json:"min_frequency"`
	MaxFrequency     int    `yaml:"max_frequency" json:"max_frequency"`
	PrimaryAntenna   int    `yaml:"primary_antenna" json:"primary_antenna"`
	SecondaryAntenna int    `yaml:"secondary_antenna" json:"secondary_antenna"`
}

// MQTTConfig configures the optional event publisher.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Config represents the antbridge configuration
type Config struct {
	Rigs struct {
		RigAName string `yaml:"rig_a_name"`
		RigBName string `yaml:"rig_b_name"`
	} `yaml:"rigs"`

	Antennas struct {
		// Display names keyed by antenna number, "0" is the deselected state
		Names map[string]string `yaml:"names"`
	} `yaml:"antennas"`

	WebSocket struct {
		URL     string `yaml:"url"`
		Port    int    `yaml:"port"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"websocket"`

	UDP struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"udp"`

	AutoSwitch struct {
		AutoA        bool          `yaml:"auto_a"`
		AutoB        bool          `yaml:"auto_b"`
		AntennaRules []AntennaRule `yaml:"antenna_rules"`
	} `yaml:"auto_switch"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxCommands  int    `yaml:"max_commands"`
	} `yaml:"storage"`

	MQTT MQTTConfig `yaml:"mqtt"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

var defaultAntennaNames = map[string]string{
	"0": "OFF",
	"1": "1",
	"2": "2",
	"3": "3",
	"4": "4",
	"5": "5",
	"6": "6",
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Rigs.RigAName == "" {
		c.Rigs.RigAName = "A"
	}
	if c.Rigs.RigBName == "" {
		c.Rigs.RigBName = "B"
	}
	if c.Antennas.Names == nil {
		c.Antennas.Names = make(map[string]string, len(defaultAntennaNames))
	}
	for k, v := range defaultAntennaNames {
		if _, ok := c.Antennas.Names[k]; !ok {
			c.Antennas.Names[k] = v
		}
	}
	if c.WebSocket.URL == "" {
		c.WebSocket.URL = "http://127.0.0.1/"
	}
	if c.WebSocket.Port == 0 {
		c.WebSocket.Port = 81
	}
	if c.UDP.Host == "" {
		c.UDP.Host = "127.0.0.1"
	}
	if c.UDP.Port == 0 {
		c.UDP.Port = 12060 // N1MM+ default broadcast port
	}
	for i := range c.AutoSwitch.AntennaRules {
		c.AutoSwitch.AntennaRules[i].Rig = strings.ToUpper(strings.TrimSpace(c.AutoSwitch.AntennaRules[i].Rig))
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8090
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "127.0.0.1"
	}
	if c.Storage.MaxCommands == 0 {
		c.Storage.MaxCommands = 1000
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "antbridge"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// WebSocketEnabled reports whether the controller connection is enabled (default true).
func (c *Config) WebSocketEnabled() bool {
	return c.WebSocket.Enabled == nil || *c.WebSocket.Enabled
}

// UDPEnabled reports whether the telemetry listener is enabled (default true).
func (c *Config) UDPEnabled() bool {
	return c.UDP.Enabled == nil || *c.UDP.Enabled
}

// AntennaName returns the display name for an antenna number.
func (c *Config) AntennaName(value int) string {
	if name, ok := c.Antennas.Names[strconv.Itoa(value)]; ok {
		return name
	}
	return strconv.Itoa(value)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WebSocket.Port < 1 || c.WebSocket.Port > 65535 {
		return fmt.Errorf("websocket port %d out of range", c.WebSocket.Port)
	}
	if c.UDP.Port < 1 || c.UDP.Port > 65535 {
		return fmt.Errorf("udp port %d out of range", c.UDP.Port)
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	if c.Storage.MaxCommands < 0 {
		return fmt.Errorf("storage max_commands must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required when mqtt is enabled")
	}
	return nil
}

// RuleWarnings lists antenna rules that can never match. Rules are not
// rejected; a rule naming an unknown rig or an empty range is simply inert.
func (c *Config) RuleWarnings() []string {
	var warnings []string
	for i, rule := range c.AutoSwitch.AntennaRules {
		if rule.Rig != "A" && rule.Rig != "B" {
			warnings = append(warnings, fmt.Sprintf("rule %d: unknown rig %q", i, rule.Rig))
		}
		if rule.MinFrequency >= rule.MaxFrequency {
			warnings = append(warnings, fmt.Sprintf("rule %d: empty frequency range %d-%d", i, rule.MinFrequency, rule.MaxFrequency))
		}
		if rule.PrimaryAntenna < 0 || rule.SecondaryAntenna < 0 {
			warnings = append(warnings, fmt.Sprintf("rule %d: negative antenna number", i))
		}
	}
	return warnings
}
