package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/tableap/internal/types"
)

// DeviceInfo describes the peer connection currently serving an edge.
// Outbound is drained by that connection's writer; Done closes when the
// connection task exits.
type DeviceInfo struct {
	ID          string
	Edge        types.Edge
	Address     string
	ConnectedAt time.Time
	Outbound    chan<- []byte
	Done        <-chan struct{}
}

// Registry maps each edge to at most one live peer connection.
//
// Lock discipline: one mutex for the whole map, held only for the map
// operation itself. Nothing sends on a channel or touches a socket while
// holding it.
type Registry struct {
	mu      sync.Mutex
	devices map[types.Edge]DeviceInfo
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[types.Edge]DeviceInfo)}
}

// Register installs info for its edge, replacing any existing entry. The
// replaced entry is returned so the caller can log it.
func (r *Registry) Register(info DeviceInfo) (DeviceInfo, bool) {
	r.mu.Lock()
	prev, had := r.devices[info.Edge]
	r.devices[info.Edge] = info
	r.mu.Unlock()
	return prev, had
}

// Lookup returns the connection serving edge.
func (r *Registry) Lookup(edge types.Edge) (DeviceInfo, bool) {
	r.mu.Lock()
	info, ok := r.devices[edge]
	r.mu.Unlock()
	return info, ok
}

// Unregister removes the entry for edge only if it still belongs to
// connection id. A connection that was replaced cannot evict its successor.
func (r *Registry) Unregister(edge types.Edge, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.devices[edge]
	if !ok || info.ID != id {
		return false
	}
	delete(r.devices, edge)
	return true
}

// List returns a snapshot of all entries ordered by edge.
func (r *Registry) List() []DeviceInfo {
	r.mu.Lock()
	out := make([]DeviceInfo, 0, len(r.devices))
	for _, info := range r.devices {
		out = append(out, info)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Edge < out[j].Edge })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
