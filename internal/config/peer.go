package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	OpenerExec = "exec"
	OpenerCDP  = "cdp"
)

// PeerConfig holds configuration for the peer process that opens forwarded
// tabs.
type PeerConfig struct {
	RelayAddr string

	BackoffUnit     time.Duration
	BackoffMaxUnits int

	Opener        string
	CDPURL        string
	Browser       string
	LaunchBrowser bool
	ProfileDir    string
	NTFYURL       string

	LogLevel string
	LogFile  string
}

// LoadPeer reads peer configuration from the environment after merging
// envFile (or ./.env when empty). TABLEAP_RELAY_ADDR is required.
func LoadPeer(envFile string) (*PeerConfig, error) {
	loadEnvFile(envFile)

	cfg := &PeerConfig{
		RelayAddr:       getEnvOrDefault("TABLEAP_RELAY_ADDR", ""),
		BackoffUnit:     getEnvMillisOrDefault("TABLEAP_BACKOFF_UNIT_MS", 1000),
		BackoffMaxUnits: getEnvIntOrDefault("TABLEAP_BACKOFF_MAX_UNITS", 30),
		Opener:          strings.ToLower(getEnvOrDefault("TABLEAP_OPENER", OpenerExec)),
		CDPURL:          getEnvOrDefault("TABLEAP_CDP_URL", "http://127.0.0.1:9222"),
		Browser:         getEnvOrDefault("TABLEAP_BROWSER", ""),
		LaunchBrowser:   getEnvBoolOrDefault("TABLEAP_LAUNCH_BROWSER", false),
		ProfileDir:      getEnvOrDefault("TABLEAP_BROWSER_PROFILE_DIR", "./chrome-profile"),
		NTFYURL:         getEnvOrDefault("TABLEAP_NTFY_URL", ""),
		LogLevel:        strings.ToLower(getEnvOrDefault("TABLEAP_LOG_LEVEL", "info")),
		LogFile:         getEnvOrDefault("TABLEAP_LOG_FILE", "logs/peer.log"),
	}
	if cfg.RelayAddr == "" {
		return nil, fmt.Errorf("peer config: TABLEAP_RELAY_ADDR is required")
	}
	if _, _, err := net.SplitHostPort(cfg.RelayAddr); err != nil {
		// Bare host: use the relay's default peer port.
		cfg.RelayAddr = net.JoinHostPort(cfg.RelayAddr, "24811")
	}
	if cfg.Opener != OpenerExec && cfg.Opener != OpenerCDP {
		return nil, fmt.Errorf("peer config: TABLEAP_OPENER must be %q or %q, got %q", OpenerExec, OpenerCDP, cfg.Opener)
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = time.Second
	}
	if cfg.BackoffMaxUnits < 1 {
		cfg.BackoffMaxUnits = 1
	}
	return cfg, nil
}

// BackoffMax is the reconnect delay cap.
func (c *PeerConfig) BackoffMax() time.Duration {
	return c.BackoffUnit * time.Duration(c.BackoffMaxUnits)
}
