package model

import (
	"math"
	"sync"
)

// Transport answers distance and duration queries between locations for a
// routing profile. Implementations must be pure with respect to the solver:
// identical queries return identical answers for the lifetime of a Problem,
// and concurrent callers need no synchronization.
type Transport interface {
	Distance(profile string, from, to Location, departure float64) float64
	Duration(profile string, from, to Location, departure float64) float64
}

// HaversineTransport derives durations from great-circle distance and a
// per-profile average speed.
type HaversineTransport struct {
	// SpeedKph maps profile names to average speeds. Profiles missing from
	// the map fall back to DefaultSpeedKph.
	SpeedKph        map[string]float64
	DefaultSpeedKph float64
}

func (h *HaversineTransport) speed(profile string) float64 {
	if s, ok := h.SpeedKph[profile]; ok && s > 0 {
		return s
	}
	if h.DefaultSpeedKph > 0 {
		return h.DefaultSpeedKph
	}
	return 50
}

func (h *HaversineTransport) Distance(_ string, from, to Location, _ float64) float64 {
	return Haversine(from.Lat, from.Lng, to.Lat, to.Lng)
}

func (h *HaversineTransport) Duration(profile string, from, to Location, _ float64) float64 {
	return Haversine(from.Lat, from.Lng, to.Lat, to.Lng) / (h.speed(profile) / 3.6)
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// MatrixTransport serves precomputed distance/duration matrices indexed by
// Location.Index, one pair of matrices per profile.
type MatrixTransport struct {
	Distances map[string][][]float64
	Durations map[string][][]float64
}

func (m *MatrixTransport) Distance(profile string, from, to Location, _ float64) float64 {
	return lookup(m.Distances[profile], from.Index, to.Index)
}

func (m *MatrixTransport) Duration(profile string, from, to Location, _ float64) float64 {
	return lookup(m.Durations[profile], from.Index, to.Index)
}

func lookup(matrix [][]float64, from, to int) float64 {
	if from < 0 || to < 0 || from >= len(matrix) {
		return 0
	}
	row := matrix[from]
	if to >= len(row) {
		return 0
	}
	return row[to]
}

// MemoTransport caches answers from a slower oracle. Departure time is
// excluded from the key, so wrap only time-independent oracles.
type MemoTransport struct {
	Inner Transport

	mu   sync.RWMutex
	dist map[memoKey]float64
	dur  map[memoKey]float64
}

type memoKey struct {
	profile          string
	fromLat, fromLng float64
	toLat, toLng     float64
	fromIdx, toIdx   int
}

func NewMemoTransport(inner Transport) *MemoTransport {
	return &MemoTransport{
		Inner: inner,
		dist:  map[memoKey]float64{},
		dur:   map[memoKey]float64{},
	}
}

func (m *MemoTransport) key(profile string, from, to Location) memoKey {
	return memoKey{profile, from.Lat, from.Lng, to.Lat, to.Lng, from.Index, to.Index}
}

func (m *MemoTransport) Distance(profile string, from, to Location, departure float64) float64 {
	k := m.key(profile, from, to)
	m.mu.RLock()
	v, ok := m.dist[k]
	m.mu.RUnlock()
	if ok {
		return v
	}
	v = m.Inner.Distance(profile, from, to, departure)
	m.mu.Lock()
	m.dist[k] = v
	m.mu.Unlock()
	return v
}

func (m *MemoTransport) Duration(profile string, from, to Location, departure float64) float64 {
	k := m.key(profile, from, to)
	m.mu.RLock()
	v, ok := m.dur[k]
	m.mu.RUnlock()
	if ok {
		return v
	}
	v = m.Inner.Duration(profile, from, to, departure)
	m.mu.Lock()
	m.dur[k] = v
	m.mu.Unlock()
	return v
}
