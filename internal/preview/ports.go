package preview

import (
	"fmt"
	"net"
	"sync"
)

// PortAllocator hands out free TCP ports from a fixed range and tracks
// which session holds which port. Allocation is serialized under one
// mutex so no two concurrent calls can return the same port; OS-level
// freeness is confirmed with a transient bind probe that is released
// immediately.
type PortAllocator struct {
	mu       sync.Mutex
	start    int
	end      int
	excluded map[int]struct{}
	reserved map[string]int
}

// NewPortAllocator creates an allocator for ports in [start, end].
// Excluded ports (the host's own port included) are never handed out.
func NewPortAllocator(start, end int, excluded ...int) *PortAllocator {
	a := &PortAllocator{
		start:    start,
		end:      end,
		excluded: make(map[int]struct{}, len(excluded)),
		reserved: make(map[string]int),
	}
	for _, p := range excluded {
		a.excluded[p] = struct{}{}
	}
	return a
}

// Allocate reserves the first bindable port in the range for sessionID.
// A previous reservation for the same session is replaced.
func (a *PortAllocator) Allocate(sessionID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	inUse := make(map[int]struct{}, len(a.reserved))
	for id, p := range a.reserved {
		if id != sessionID {
			inUse[p] = struct{}{}
		}
	}

	for port := a.start; port <= a.end; port++ {
		if _, skip := a.excluded[port]; skip {
			continue
		}
		if _, taken := inUse[port]; taken {
			continue
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		a.reserved[sessionID] = port
		return port, nil
	}

	return 0, fmt.Errorf("%w: %d-%d", ErrPortExhausted, a.start, a.end)
}

// Release drops the reservation held by sessionID, if any
func (a *PortAllocator) Release(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.reserved, sessionID)
}

// PortOf returns the port reserved for sessionID
func (a *PortAllocator) PortOf(sessionID string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	port, ok := a.reserved[sessionID]
	return port, ok
}

// ReapOrphans removes reservations whose session id is not in the active
// set and returns how many were removed.
func (a *PortAllocator) ReapOrphans(activeSessionIDs []string) int {
	active := make(map[string]struct{}, len(activeSessionIDs))
	for _, id := range activeSessionIDs {
		active[id] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for id := range a.reserved {
		if _, ok := active[id]; !ok {
			delete(a.reserved, id)
			removed++
		}
	}
	return removed
}

// Clear drops every reservation
func (a *PortAllocator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved = make(map[string]int)
}

// Reserved returns a copy of the reservation table
func (a *PortAllocator) Reserved() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.reserved))
	for id, p := range a.reserved {
		out[id] = p
	}
	return out
}
