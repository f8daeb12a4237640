package occupancy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
)

// Memory is the in-process registry used by a single engine instance.
type Memory struct {
	mu       sync.Mutex
	stations map[string]models.Occupancy
	now      func() time.Time
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates an empty in-memory registry reading time from now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		stations: make(map[string]models.Occupancy),
		now:      now,
	}
}

func (m *Memory) Occupy(_ context.Context, stationID, operatorID string) (models.Occupancy, error) {
	err := validateIDs(stationID, operatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, held := m.stations[stationID]
	if held && current.OperatorID != operatorID {
		return models.Occupancy{}, &models.ConflictError{
			StationID:       stationID,
			CurrentOccupant: current.OperatorID,
			Since:           current.Since,
		}
	}

	occupancy := models.Occupancy{StationID: stationID, OperatorID: operatorID, Since: m.now()}
	m.stations[stationID] = occupancy

	return occupancy, nil
}

func (m *Memory) Takeover(_ context.Context, stationID, newOperatorID string) (models.Occupancy, error) {
	err := validateIDs(stationID, newOperatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	occupancy := models.Occupancy{StationID: stationID, OperatorID: newOperatorID, Since: m.now()}
	m.stations[stationID] = occupancy

	return occupancy, nil
}

func (m *Memory) Release(_ context.Context, stationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.stations, stationID)

	return nil
}

func (m *Memory) Get(_ context.Context, stationID string) (models.Occupancy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occupancy, ok := m.stations[stationID]

	return occupancy, ok, nil
}

func (m *Memory) List(_ context.Context) ([]models.Occupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]models.Occupancy, 0, len(m.stations))
	for _, occupancy := range m.stations {
		list = append(list, occupancy)
	}

	sortByStation(list)

	return list, nil
}

func (m *Memory) ReleaseOlderThan(_ context.Context, cutoff time.Time) ([]models.Occupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := make([]models.Occupancy, 0)

	for stationID, occupancy := range m.stations {
		if occupancy.Since.Before(cutoff) {
			released = append(released, occupancy)
			delete(m.stations, stationID)
		}
	}

	sortByStation(released)

	return released, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stations = make(map[string]models.Occupancy)

	return nil
}

func (m *Memory) HealthCheck(_ context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func sortByStation(list []models.Occupancy) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].StationID < list[j].StationID
	})
}
