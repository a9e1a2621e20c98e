package config

import (
	"fmt"
	"strings"
	"time"
)

// RelayConfig holds configuration for the relay process.
type RelayConfig struct {
	ExtensionAddr           string
	PeerAddr                string
	ControlAddr             string
	ControlAddrCandidates   []string
	ControlAddrAutoFallback bool
	DevicesFile             string

	GestureBuffer  int
	OutboundBuffer int
	RouteTimeout   time.Duration

	GestureHold     time.Duration
	GestureEdgeBand int
	GestureCooldown time.Duration

	LogLevel string
	LogFile  string
}

// LoadRelay reads relay configuration from the environment after merging
// envFile (or ./.env when empty).
func LoadRelay(envFile string) (*RelayConfig, error) {
	loadEnvFile(envFile)

	cfg := &RelayConfig{
		ExtensionAddr:           getEnvOrDefault("TABLEAP_EXTENSION_ADDR", "127.0.0.1:24810"),
		PeerAddr:                getEnvOrDefault("TABLEAP_PEER_ADDR", "0.0.0.0:24811"),
		ControlAddr:             getEnvOrDefault("TABLEAP_CONTROL_ADDR", "127.0.0.1:24812"),
		ControlAddrCandidates:   getEnvListOrDefault("TABLEAP_CONTROL_ADDR_CANDIDATES", []string{"127.0.0.1:24813", "127.0.0.1:24814"}),
		ControlAddrAutoFallback: getEnvBoolOrDefault("TABLEAP_CONTROL_ADDR_AUTO_FALLBACK", true),
		DevicesFile:             getEnvOrDefault("TABLEAP_DEVICES_FILE", "./config/devices.yaml"),
		GestureBuffer:           getEnvIntOrDefault("TABLEAP_GESTURE_BUFFER", 16),
		OutboundBuffer:          getEnvIntOrDefault("TABLEAP_OUTBOUND_BUFFER", 32),
		RouteTimeout:            getEnvMillisOrDefault("TABLEAP_ROUTE_TIMEOUT_MS", 2000),
		GestureHold:             getEnvMillisOrDefault("TABLEAP_GESTURE_HOLD_MS", 300),
		GestureEdgeBand:         getEnvIntOrDefault("TABLEAP_GESTURE_EDGE_PX", 15),
		GestureCooldown:         getEnvMillisOrDefault("TABLEAP_GESTURE_COOLDOWN_MS", 10000),
		LogLevel:                strings.ToLower(getEnvOrDefault("TABLEAP_LOG_LEVEL", "info")),
		LogFile:                 getEnvOrDefault("TABLEAP_LOG_FILE", "logs/relay.log"),
	}
	if cfg.GestureBuffer < 1 {
		return nil, fmt.Errorf("relay config: TABLEAP_GESTURE_BUFFER must be positive, got %d", cfg.GestureBuffer)
	}
	if cfg.OutboundBuffer < 1 {
		return nil, fmt.Errorf("relay config: TABLEAP_OUTBOUND_BUFFER must be positive, got %d", cfg.OutboundBuffer)
	}
	if cfg.RouteTimeout < 100*time.Millisecond {
		cfg.RouteTimeout = 100 * time.Millisecond
	}
	return cfg, nil
}
