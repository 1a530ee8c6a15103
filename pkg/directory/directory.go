// Package directory tracks registered minions and their liveness.
package directory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound indicates a minion id that was never registered.
var ErrNotFound = errors.New("minion not registered")

// Status is the liveness state of a minion.
type Status string

const (
	StatusActive       Status = "active"
	StatusDisconnected Status = "disconnected"
)

// Record is the identity and liveness of one minion.
type Record struct {
	ID            string    `json:"minion_id" yaml:"minion_id"`
	Host          string    `json:"host" yaml:"host"`
	Port          int       `json:"port" yaml:"port"`
	Capabilities  []string  `json:"capabilities" yaml:"capabilities"`
	Status        Status    `json:"status" yaml:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat" yaml:"last_heartbeat"`
	RegisteredAt  time.Time `json:"registered_at" yaml:"registered_at"`
}

// Address returns host:port.
func (r Record) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Directory is an in-memory registry of minions, safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	minions map[string]*Record
	now     func() time.Time
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		minions: make(map[string]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the directory's time source. Intended for tests.
func (d *Directory) WithClock(now func() time.Time) *Directory {
	d.now = now
	return d
}

// Register upserts a minion. It never rejects.
//
// Re-registration replaces host, port and capabilities and marks the minion
// active again; the original RegisteredAt is kept. It reports whether the
// id was already known.
func (d *Directory) Register(id, host string, port int, capabilities []string) (Record, bool) {
	id = strings.TrimSpace(id)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	caps := append([]string(nil), capabilities...)
	rec, existed := d.minions[id]
	if !existed {
		rec = &Record{ID: id, RegisteredAt: now}
		d.minions[id] = rec
	}
	rec.Host = host
	rec.Port = port
	rec.Capabilities = caps
	rec.Status = StatusActive
	rec.LastHeartbeat = now
	return rec.clone(), existed
}

// Heartbeat refreshes a minion's liveness and marks it active.
func (d *Directory) Heartbeat(id string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.minions[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.LastHeartbeat = d.now()
	rec.Status = StatusActive
	return rec.clone(), nil
}

// Disconnect marks a minion disconnected.
func (d *Directory) Disconnect(id string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.minions[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Status = StatusDisconnected
	return rec.clone(), nil
}

// Get returns the record for id.
func (d *Directory) Get(id string) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.minions[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.clone(), nil
}

// List returns all records sorted by id.
func (d *Directory) List() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Record, 0, len(d.minions))
	for _, rec := range d.minions {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveCount returns the number of minions currently marked active.
func (d *Directory) ActiveCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, rec := range d.minions {
		if rec.Status == StatusActive {
			n++
		}
	}
	return n
}

// Expire marks every active minion whose last heartbeat is older than
// timeout as disconnected and returns their ids in sorted order.
func (d *Directory) Expire(timeout time.Duration) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var expired []string
	for id, rec := range d.minions {
		if rec.Status != StatusActive {
			continue
		}
		if now.Sub(rec.LastHeartbeat) > timeout {
			rec.Status = StatusDisconnected
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired
}

func (r *Record) clone() Record {
	c := *r
	c.Capabilities = append([]string(nil), r.Capabilities...)
	return c
}
