// Package ports hands out non-conflicting TCP ports from per-category bands
package ports

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Band is an inclusive port range reserved for one category
type Band struct {
	Category string
	Start    int
	End      int
}

// Contains reports whether port lies in the band
func (b Band) Contains(port int) bool {
	return port >= b.Start && port <= b.End
}

// Size returns the number of ports in the band
func (b Band) Size() int {
	return b.End - b.Start + 1
}

// Allocation is a port bound to a session
type Allocation struct {
	Port        int    `json:"port"`
	SessionID   string `json:"session_id"`
	Category    string `json:"category"`
	Requested   int    `json:"requested,omitempty"`
	Substituted bool   `json:"substituted"`
}

// ProbeFunc reports whether something outside the registry already holds port
type ProbeFunc func(port int) bool

// Option configures a Registry
type Option func(*Registry)

// WithProbe makes allocation skip ports that are in use by other programs
func WithProbe(probe ProbeFunc) Option {
	return func(r *Registry) {
		r.probe = probe
	}
}

// Registry tracks which ports are held by which sessions
type Registry struct {
	mu     sync.Mutex
	bands  map[string]Band
	order  []string
	held   map[int]Allocation
	probe  ProbeFunc
	cursor map[string]int
}

// NewRegistry creates a registry. Bands must be non-empty and pairwise disjoint.
func NewRegistry(bands []Band, opts ...Option) (*Registry, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("at least one port band is required")
	}

	r := &Registry{
		bands:  make(map[string]Band, len(bands)),
		held:   make(map[int]Allocation),
		cursor: make(map[string]int, len(bands)),
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i, b := range sorted {
		if b.Category == "" {
			return nil, fmt.Errorf("port band category is required")
		}
		if b.Start <= 0 || b.End > 65535 || b.Start > b.End {
			return nil, fmt.Errorf("port band %q has invalid range %d-%d", b.Category, b.Start, b.End)
		}
		if _, dup := r.bands[b.Category]; dup {
			return nil, fmt.Errorf("port band %q is declared twice", b.Category)
		}
		if i > 0 && b.Start <= sorted[i-1].End {
			return nil, fmt.Errorf("port bands %q and %q overlap", sorted[i-1].Category, b.Category)
		}
		r.bands[b.Category] = b
	}
	for _, b := range bands {
		r.order = append(r.order, b.Category)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ListenProbe reports a port as busy when it cannot be bound on the loopback interface
func ListenProbe(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = l.Close()
	return false
}

// Allocate reserves a port in category's band for owner.
// The preferred port is used when it is in the band and free; otherwise the next
// free port is returned with Substituted set. A preferred port of 0 means any.
func (r *Registry) Allocate(category string, preferred int, owner string) (Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	band, ok := r.bands[category]
	if !ok {
		return Allocation{}, types.NewError(types.KindInvalidParams, "unknown port category %q", category)
	}

	alloc := Allocation{SessionID: owner, Category: category, Requested: preferred}

	if preferred != 0 && band.Contains(preferred) && r.freeLocked(preferred) {
		alloc.Port = preferred
		r.held[preferred] = alloc
		return alloc, nil
	}

	// Scan from just past the last allocation so a released port is not reused at once.
	start := r.cursor[category]
	if !band.Contains(start) {
		start = band.Start
	}
	for i := 0; i < band.Size(); i++ {
		port := band.Start + (start-band.Start+i)%band.Size()
		if !r.freeLocked(port) {
			continue
		}
		alloc.Port = port
		alloc.Substituted = preferred != 0
		r.held[port] = alloc
		r.cursor[category] = port + 1
		return alloc, nil
	}

	return Allocation{}, types.NewError(types.KindPortRangeExhausted,
		"no free port in %s band %d-%d", category, band.Start, band.End)
}

func (r *Registry) freeLocked(port int) bool {
	if _, taken := r.held[port]; taken {
		return false
	}
	if r.probe != nil && r.probe(port) {
		return false
	}
	return true
}

// Release frees port. Releasing a free port is a no-op.
func (r *Registry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, port)
}

// ReleaseOwned frees port only if it is still held by owner
func (r *Registry) ReleaseOwned(port int, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.held[port]
	if !ok || a.SessionID != owner {
		return false
	}
	delete(r.held, port)
	return true
}

// IsAllocated reports whether port is held
func (r *Registry) IsAllocated(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.held[port]
	return ok
}

// Owner returns the session holding port
func (r *Registry) Owner(port int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.held[port]
	return a.SessionID, ok
}

// Allocations returns a snapshot of held ports ordered by port
func (r *Registry) Allocations() []Allocation {
	r.mu.Lock()
	out := make([]Allocation, 0, len(r.held))
	for _, a := range r.held {
		out = append(out, a)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// BandFor returns the band containing port
func (r *Registry) BandFor(port int) (Band, bool) {
	for _, b := range r.bands {
		if b.Contains(port) {
			return b, true
		}
	}
	return Band{}, false
}

// Band returns the band for category
func (r *Registry) Band(category string) (Band, bool) {
	b, ok := r.bands[category]
	return b, ok
}

// Categories returns band categories in declaration order
func (r *Registry) Categories() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
