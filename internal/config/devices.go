package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/tableap/internal/types"
)

// DeviceEntry maps one peer machine's address to the edge it sits on.
type DeviceEntry struct {
	Address string     `yaml:"address"`
	Edge    types.Edge `yaml:"edge"`
}

// Devices is the immutable address→edge table loaded at startup.
type Devices struct {
	Devices []DeviceEntry `yaml:"devices"`
}

// LoadDevices reads and validates a devices YAML file.
func LoadDevices(path string) (Devices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Devices{}, fmt.Errorf("devices config: %w", err)
	}
	return ParseDevices(data)
}

// ParseDevices validates a devices YAML document. Every entry needs an IP
// address and a known edge; an address may appear only once.
func ParseDevices(data []byte) (Devices, error) {
	var cfg Devices
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Devices{}, fmt.Errorf("devices config: %w", err)
	}
	if len(cfg.Devices) < 1 {
		return Devices{}, fmt.Errorf("devices config: at least one device entry is required")
	}
	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.Address == "" {
			return Devices{}, fmt.Errorf("devices config: devices[%d] missing address", i)
		}
		ip := net.ParseIP(d.Address)
		if ip == nil {
			return Devices{}, fmt.Errorf("devices config: devices[%d] address %q is not an IP", i, d.Address)
		}
		edge, err := types.ParseEdge(string(d.Edge))
		if err != nil {
			return Devices{}, fmt.Errorf("devices config: devices[%d] (%s): %w", i, d.Address, err)
		}
		key := ip.String()
		if seen[key] {
			return Devices{}, fmt.Errorf("devices config: devices[%d] duplicate address %s", i, d.Address)
		}
		seen[key] = true
		cfg.Devices[i].Address = key
		cfg.Devices[i].Edge = edge
	}
	return cfg, nil
}

// EdgeFor resolves a peer's source IP to its configured edge. IPv4-mapped
// IPv6 addresses match their IPv4 form.
func (d Devices) EdgeFor(ip string) (types.Edge, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", false
	}
	for _, entry := range d.Devices {
		if net.ParseIP(entry.Address).Equal(parsed) {
			return entry.Edge, true
		}
	}
	return "", false
}
