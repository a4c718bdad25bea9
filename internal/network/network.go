// Package network holds the timetable served by the planner. A load builds a
// new timetable and engine set off to the side and swaps it in, so readers
// never observe a half-loaded network.
package network

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/passbi/connscan/internal/models"
	"github.com/passbi/connscan/internal/routing"
	"github.com/passbi/connscan/internal/timetable"
)

var (
	// ErrNotLoaded is returned before the first successful load
	ErrNotLoaded = errors.New("network not loaded")
	// ErrUnknownStop is returned for stop ids absent from the timetable
	ErrUnknownStop = errors.New("unknown stop")
)

// Network holds the loaded timetable with one engine per priority
type Network struct {
	mu          sync.RWMutex
	minTransfer time.Duration
	snap        *snapshot
}

type snapshot struct {
	tt       *timetable.Timetable
	engines  map[models.Priority]routing.Engine
	version  string
	loadedAt time.Time
}

// Stats describes the loaded network
type Stats struct {
	Loaded      bool      `json:"loaded"`
	Version     string    `json:"version,omitempty"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
	Stops       int       `json:"stops"`
	Connections int       `json:"connections"`
	Services    int       `json:"services"`
}

// New returns an empty network whose engines apply minTransfer between
// services. Zero allows an immediate change; callers wanting the usual
// value pass routing.DefaultMinimumTransferTime.
func New(minTransfer time.Duration) *Network {
	return &Network{minTransfer: minTransfer}
}

// Load replaces the network with connections. Unless sorted is set the
// connections are sorted by departure first.
func (n *Network) Load(connections []models.Connection, stops []models.Stop, sorted bool) error {
	startTime := time.Now()

	tt, err := timetable.New(routing.SortConnections(connections, sorted), stops)
	if err != nil {
		return fmt.Errorf("failed to build timetable: %w", err)
	}

	engines, err := routing.NewAllEngines(tt, n.minTransfer)
	if err != nil {
		return fmt.Errorf("failed to build engines: %w", err)
	}

	// Build the departure index now rather than on the first query
	if tt.NumStops() > 0 {
		tt.Departures(0)
	}

	loadedAt := time.Now()
	snap := &snapshot{
		tt:       tt,
		engines:  engines,
		version:  fmt.Sprintf("%x", loadedAt.UnixNano()),
		loadedAt: loadedAt,
	}

	n.mu.Lock()
	n.snap = snap
	n.mu.Unlock()

	log.Printf("Network loaded in %v (%d stops, %d connections, %d services)",
		time.Since(startTime), tt.NumStops(), tt.NumConnections(), tt.NumServices())
	return nil
}

func (n *Network) current() (*snapshot, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.snap == nil {
		return nil, ErrNotLoaded
	}
	return n.snap, nil
}

// IsLoaded returns true if a network has been loaded
func (n *Network) IsLoaded() bool {
	_, err := n.current()
	return err == nil
}

// Version identifies the loaded network; it changes on every load
func (n *Network) Version() string {
	snap, err := n.current()
	if err != nil {
		return ""
	}
	return snap.version
}

// Stats returns the size of the loaded network
func (n *Network) Stats() Stats {
	snap, err := n.current()
	if err != nil {
		return Stats{}
	}
	return Stats{
		Loaded:      true,
		Version:     snap.version,
		LoadedAt:    snap.loadedAt,
		Stops:       snap.tt.NumStops(),
		Connections: snap.tt.NumConnections(),
		Services:    snap.tt.NumServices(),
	}
}

// Plan runs the engine for priority from source, leaving at or after at, to
// target. An unreachable target gives an empty journey and no error.
func (n *Network) Plan(priority models.Priority, source, target string, at time.Time) ([]models.Connection, error) {
	snap, err := n.current()
	if err != nil {
		return nil, err
	}

	engine, ok := snap.engines[priority]
	if !ok {
		return nil, fmt.Errorf("%w: %v", routing.ErrUnsupportedPriority, priority)
	}

	src, err := snap.stop(source)
	if err != nil {
		return nil, err
	}
	dst, err := snap.stop(target)
	if err != nil {
		return nil, err
	}

	return engine.Run(src, at, dst), nil
}

func (s *snapshot) stop(id string) (models.Stop, error) {
	idx, ok := s.tt.StopIndex(id)
	if !ok {
		return models.Stop{}, fmt.Errorf("%w: %s", ErrUnknownStop, id)
	}
	return s.tt.Stop(idx), nil
}

// Stop looks up a stop by id
func (n *Network) Stop(id string) (models.Stop, error) {
	snap, err := n.current()
	if err != nil {
		return models.Stop{}, err
	}
	return snap.stop(id)
}

// SearchStops returns stops whose id or name contains query, case
// insensitively, ordered by id. An empty query matches every stop.
func (n *Network) SearchStops(query string, limit int) ([]models.Stop, error) {
	snap, err := n.current()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matches := []models.Stop{}
	for _, s := range snap.tt.Stops() {
		if q == "" || strings.Contains(strings.ToLower(s.ID), q) || strings.Contains(strings.ToLower(s.Name), q) {
			matches = append(matches, s)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Departures returns up to limit connections leaving stop at or after after
func (n *Network) Departures(stopID string, after time.Time, limit int) ([]models.Connection, error) {
	snap, err := n.current()
	if err != nil {
		return nil, err
	}
	idx, ok := snap.tt.StopIndex(stopID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStop, stopID)
	}
	deps := snap.tt.DeparturesAfter(idx, after.UnixMilli(), limit)
	if deps == nil {
		deps = []models.Connection{}
	}
	return deps, nil
}
