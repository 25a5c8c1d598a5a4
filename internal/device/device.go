// Package device holds the process-wide device registry: the set of peers
// discovered on the LAN or added manually, their presence, and sharing
// state (spec §3 Device, §9 global state).
package device

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Device's presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Device is the identity record for a discovered or manually-added peer.
type Device struct {
	ID          string
	DisplayName string
	IP          string
	Port        int
	Status      Status
	LastSeenMs  int64
	IsSharing   bool
}

// NewID mints a stable random 128-bit identifier in textual form, used both
// for our own advertised device id and as the basis of comparison when a
// browse result turns out to be our own record.
func NewID() string {
	return uuid.NewString()
}

// Registry is the process-wide device registry (§9). Readers and writers
// take the lock only long enough to mutate or copy; nothing here blocks on
// I/O while holding it.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // device_id -> Device
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Upsert inserts or updates a device by id. Used by discovery events,
// manual-add, and handshake registration.
func (r *Registry) Upsert(d Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.devices[d.ID]
	if !ok {
		cp := d
		r.devices[d.ID] = &cp
		return
	}
	existing.DisplayName = d.DisplayName
	existing.IP = d.IP
	existing.Port = d.Port
	existing.Status = d.Status
	existing.LastSeenMs = d.LastSeenMs
	existing.IsSharing = d.IsSharing
}

// SetSharing updates only the is_sharing flag for a device, used by
// ScreenOffer handling (§4.11) without clobbering other fields.
func (r *Registry) SetSharing(id string, sharing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.IsSharing = sharing
	}
}

// Touch updates LastSeenMs and marks the device online, used whenever
// fresh traffic is observed from a peer.
func (r *Registry) Touch(id string, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.LastSeenMs = nowMs
		d.Status = StatusOnline
	}
}

// MarkOffline flips a device's status without removing it, used when a
// connection is lost but discovery has not yet expired the record.
func (r *Registry) MarkOffline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		d.Status = StatusOffline
	}
}

// Remove deletes a device, used on peer removal or connection teardown
// (§4.11: "remove its device from the registry").
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

// RemoveByAddr removes any device whose IP matches addr, used when a
// connection is pruned by address rather than by device id.
func (r *Registry) RemoveByAddr(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.devices {
		if d.IP == ip {
			delete(r.devices, id)
		}
	}
}

// Get returns a copy of the device with the given id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// List returns a stable-ordered snapshot of all known devices.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many devices are registered. Used by tests asserting
// invariant 5 (empty after stop_service).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Clear empties the registry. Called on stop_service; the Registry cell
// itself is preserved (§9: teardown empties registries but preserves the
// cells).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*Device)
}

// NowMs returns the current time in Unix milliseconds, the unit used by
// LastSeenMs throughout the registry.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
