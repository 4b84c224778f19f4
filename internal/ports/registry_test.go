package ports

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := NewRegistry([]Band{
		{Category: "node", Start: 3001, End: 3010},
		{Category: "python", Start: 8000, End: 8002},
	}, opts...)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return r
}

func TestNewRegistryRejectsBadBands(t *testing.T) {
	tests := []struct {
		name  string
		bands []Band
	}{
		{"empty", nil},
		{"overlap", []Band{{"a", 3000, 3010}, {"b", 3010, 3020}}},
		{"inverted", []Band{{"a", 3010, 3000}}},
		{"duplicate", []Band{{"a", 3000, 3010}, {"a", 4000, 4010}}},
		{"no category", []Band{{"", 3000, 3010}}},
		{"out of range", []Band{{"a", 65000, 70000}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewRegistry(test.bands); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestAllocatePreferred(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Allocate("node", 3005, "s1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Port != 3005 || a.Substituted {
		t.Errorf("Expected port 3005 unsubstituted, got %d (substituted=%v)", a.Port, a.Substituted)
	}
	if !r.IsAllocated(3005) {
		t.Error("Expected 3005 to be allocated")
	}
	if owner, _ := r.Owner(3005); owner != "s1" {
		t.Errorf("Expected owner s1, got %q", owner)
	}
}

func TestAllocateSubstitutesTakenPort(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.Allocate("node", 3005, "s1"); err != nil {
		t.Fatal(err)
	}
	a, err := r.Allocate("node", 3005, "s2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Port == 3005 {
		t.Fatal("Expected a different port")
	}
	if !a.Substituted || a.Requested != 3005 {
		t.Errorf("Expected substitution from 3005, got %+v", a)
	}
}

func TestAllocateSubstitutesOutOfBandPort(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Allocate("node", 3000, "s1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Port < 3001 || a.Port > 3010 {
		t.Errorf("Expected in-band port, got %d", a.Port)
	}
	if !a.Substituted {
		t.Error("Expected substitution flag")
	}
}

func TestAllocateExhausted(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		if _, err := r.Allocate("python", 0, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatalf("Expected no error on allocation %d, got %v", i, err)
		}
	}
	_, err := r.Allocate("python", 0, "s4")
	if !errors.Is(err, types.ErrPortRangeExhausted) {
		t.Fatalf("Expected PortRangeExhausted, got %v", err)
	}

	r.Release(8001)
	a, err := r.Allocate("python", 0, "s4")
	if err != nil {
		t.Fatalf("Expected allocation after release, got %v", err)
	}
	if a.Port != 8001 {
		t.Errorf("Expected released port 8001, got %d", a.Port)
	}
}

func TestAllocateUnknownCategory(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Allocate("cobol", 0, "s1")
	if !errors.Is(err, types.ErrInvalidParams) {
		t.Fatalf("Expected InvalidParams, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	a, _ := r.Allocate("node", 0, "s1")
	r.Release(a.Port)
	r.Release(a.Port)
	r.Release(9999)

	if r.IsAllocated(a.Port) {
		t.Error("Expected port to be free")
	}
}

func TestReleaseOwned(t *testing.T) {
	r := newTestRegistry(t)

	a, _ := r.Allocate("node", 0, "s1")
	if r.ReleaseOwned(a.Port, "s2") {
		t.Error("Expected release by non-owner to fail")
	}
	if !r.ReleaseOwned(a.Port, "s1") {
		t.Error("Expected release by owner to succeed")
	}
}

func TestAllocateConcurrentUnique(t *testing.T) {
	r, err := NewRegistry([]Band{{Category: "node", Start: 3001, End: 3099}})
	if err != nil {
		t.Fatal(err)
	}

	const workers = 99
	var wg sync.WaitGroup
	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Allocate("node", 3050, fmt.Sprintf("s%d", i))
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
				return
			}
			results <- a.Port
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for p := range results {
		if seen[p] {
			t.Fatalf("Port %d allocated twice", p)
		}
		seen[p] = true
	}
	if len(seen) != workers {
		t.Errorf("Expected %d ports, got %d", workers, len(seen))
	}
	if len(r.Allocations()) != workers {
		t.Errorf("Expected %d allocations, got %d", workers, len(r.Allocations()))
	}
}

func TestProbeSkipsBusyPorts(t *testing.T) {
	busy := map[int]bool{3001: true, 3002: true}
	r := newTestRegistry(t, WithProbe(func(port int) bool { return busy[port] }))

	a, err := r.Allocate("node", 3001, "s1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Port != 3003 {
		t.Errorf("Expected 3003, got %d", a.Port)
	}
}

func TestListenProbe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	if !ListenProbe(port) {
		t.Errorf("Expected port %d to be reported busy", port)
	}
}

func TestBandLookup(t *testing.T) {
	r := newTestRegistry(t)

	b, ok := r.BandFor(8001)
	if !ok || b.Category != "python" {
		t.Errorf("Expected python band, got %+v (ok=%v)", b, ok)
	}
	if _, ok := r.BandFor(1); ok {
		t.Error("Expected no band for port 1")
	}
	if cats := r.Categories(); len(cats) != 2 || cats[0] != "node" {
		t.Errorf("Expected [node python], got %v", cats)
	}
}
