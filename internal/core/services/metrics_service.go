package services

import (
	"sync"
	"time"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// SessionStats is the in-process view of the client's counters.
type SessionStats struct {
	Transitions    map[string]int `json:"transitions"`
	EntryOutcomes  map[string]int `json:"entry_outcomes"`
	Groups         int            `json:"groups"`
	Channels       int            `json:"channels"`
	Preparing      bool           `json:"preparing"`
	Transmitting   int            `json:"transmitting"`
	Scans          int            `json:"scans"`
	UncleanScans   int            `json:"unclean_scans"`
	PluginsFound   int            `json:"plugins_found"`
	LastScanTook   time.Duration  `json:"last_scan_took"`
	LastTransition time.Time      `json:"last_transition"`
}

// MetricsService keeps counters in memory. It is safe for concurrent use so
// the HTTP layer can read it off the control thread.
type MetricsService struct {
	mu    sync.RWMutex
	stats SessionStats
}

// NewMetricsService keeps counters in memory for /stats.
func NewMetricsService() *MetricsService {
	return &MetricsService{stats: SessionStats{
		Transitions:   make(map[string]int),
		EntryOutcomes: make(map[string]int),
	}}
}

func (m *MetricsService) RecordTransition(from, to domain.RoomState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Transitions[from.String()+"->"+to.String()]++
	m.stats.LastTransition = time.Now()
}

func (m *MetricsService) RecordEntryOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.EntryOutcomes[outcome]++
}

func (m *MetricsService) SetGroupCount(groups, channels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Groups = groups
	m.stats.Channels = channels
}

func (m *MetricsService) SetPreparing(preparing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Preparing = preparing
}

func (m *MetricsService) SetTransmitting(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Transmitting = count
}

func (m *MetricsService) RecordScan(duration time.Duration, found int, clean bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Scans++
	if !clean {
		m.stats.UncleanScans++
	}
	m.stats.PluginsFound = found
	m.stats.LastScanTook = duration
}

// Stats returns a copy safe to hand out.
func (m *MetricsService) Stats() SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.stats
	out.Transitions = make(map[string]int, len(m.stats.Transitions))
	for k, v := range m.stats.Transitions {
		out.Transitions[k] = v
	}
	out.EntryOutcomes = make(map[string]int, len(m.stats.EntryOutcomes))
	for k, v := range m.stats.EntryOutcomes {
		out.EntryOutcomes[k] = v
	}
	return out
}

// MultiRecorder fans observations out to several recorders.
type MultiRecorder []ports.MetricsRecorder

func (m MultiRecorder) RecordTransition(from, to domain.RoomState) {
	for _, r := range m {
		r.RecordTransition(from, to)
	}
}

func (m MultiRecorder) RecordEntryOutcome(outcome string) {
	for _, r := range m {
		r.RecordEntryOutcome(outcome)
	}
}

func (m MultiRecorder) SetGroupCount(groups, channels int) {
	for _, r := range m {
		r.SetGroupCount(groups, channels)
	}
}

func (m MultiRecorder) SetPreparing(preparing bool) {
	for _, r := range m {
		r.SetPreparing(preparing)
	}
}

func (m MultiRecorder) SetTransmitting(count int) {
	for _, r := range m {
		r.SetTransmitting(count)
	}
}

func (m MultiRecorder) RecordScan(duration time.Duration, found int, clean bool) {
	for _, r := range m {
		r.RecordScan(duration, found, clean)
	}
}
