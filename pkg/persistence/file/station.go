package file

import (
	"context"
	"sort"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// StationRepository handles station definition file operations.
type StationRepository struct {
	store *Persistence
}

func (r *StationRepository) GetByID(_ context.Context, id string) (*models.StationDefinition, error) {
	var station models.StationDefinition

	found, err := r.store.read(stationsDir, id, &station)
	if err != nil || !found {
		return nil, err
	}

	return &station, nil
}

func (r *StationRepository) List(ctx context.Context) ([]*models.StationDefinition, error) {
	ids, err := r.store.ids(stationsDir)
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)

	stations := make([]*models.StationDefinition, 0, len(ids))

	for _, id := range ids {
		station, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if station != nil {
			stations = append(stations, station)
		}
	}

	return stations, nil
}

func (r *StationRepository) Create(_ context.Context, station *models.StationDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.exists(stationsDir, station.ID) {
		return persistence.NewRecordError("Create", "station", station.ID, persistence.ErrAlreadyExists)
	}

	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}

	return r.store.write(stationsDir, station.ID, station)
}
