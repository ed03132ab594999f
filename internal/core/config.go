package core

import (
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// PublicIPConfig describes one public IP the pool should register at startup.
type PublicIPConfig struct {
	Address string `yaml:"address"`
}

// PoolConfig holds the PortPool sizing knobs.
type PoolConfig struct {
	PublicIPs      []PublicIPConfig `yaml:"public_ips,omitempty"`
	MaxPublicIPs   int              `yaml:"max_public_ips,omitempty"`
	PortRangeStart int              `yaml:"port_range_start,omitempty"`
	PortRangeEnd   int              `yaml:"port_range_end,omitempty"`
}

// TimeoutConfig holds the per-protocol idle timeouts consumed by the sweeper.
type TimeoutConfig struct {
	TCPSeconds int `yaml:"tcp_seconds,omitempty"`
	UDPSeconds int `yaml:"udp_seconds,omitempty"`
}

// Config is the top-level application configuration for the translation engine.
type Config struct {
	Pool     PoolConfig    `yaml:"pool,omitempty"`
	Timeouts TimeoutConfig `yaml:"timeouts,omitempty"`
	MaxFlows int           `yaml:"max_flows,omitempty"`
	Log      LogConfig     `yaml:"log,omitempty"`
}

// defaultConfig returns the configuration matching the spec's stated
// defaults (§6 Configuration constants).
func defaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MaxPublicIPs:   10,
			PortRangeStart: 1024,
			PortRangeEnd:   65535,
		},
		Timeouts: TimeoutConfig{
			TCPSeconds: 300,
			UDPSeconds: 60,
		},
		MaxFlows: 50000,
	}
}

// ConfigManager handles loading, saving, and hot-reloading configuration.
type ConfigManager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
	bus      *EventBus
}

// NewConfigManager creates a config manager that reads from the given file.
func NewConfigManager(filePath string, bus *EventBus) *ConfigManager {
	return &ConfigManager{
		filePath: filePath,
		bus:      bus,
		config:   defaultConfig(),
	}
}

// Load reads and parses the configuration from disk.
// If the config file does not exist, it creates one with default values.
func (cm *ConfigManager) Load() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Core] Config %s not found, creating default config", cm.filePath)
			cm.mu.Lock()
			cm.config = defaultConfig()
			cm.mu.Unlock()
			if saveErr := cm.Save(); saveErr != nil {
				return fmt.Errorf("[Core] failed to create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("[Core] failed to read config %s: %w", cm.filePath, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("[Core] failed to parse config: %w", err)
	}

	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()

	if cm.bus != nil {
		cm.bus.Publish(Event{Type: EventConfigReloaded})
	}

	return nil
}

// Save writes the current configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(&cm.config)
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("[Core] failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.filePath, data, 0644); err != nil {
		return fmt.Errorf("[Core] failed to write config %s: %w", cm.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}
