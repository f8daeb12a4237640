// Package occupancy tracks which operator currently holds which physical
// station. Occupancy is session state: it is cleared whenever the engine
// starts and is never stored with the business records.
package occupancy

import (
	"context"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
)

// Registry arbitrates station ownership between operators. Contention is
// resolved by an explicit Takeover, never by waiting.
type Registry interface {
	// Occupy records operatorID as the holder of stationID. It fails with a
	// *models.ConflictError when another operator holds the station.
	Occupy(ctx context.Context, stationID, operatorID string) (models.Occupancy, error)
	// Takeover unconditionally makes newOperatorID the holder of stationID.
	Takeover(ctx context.Context, stationID, newOperatorID string) (models.Occupancy, error)
	// Release clears the station. Releasing a free station is a no-op.
	Release(ctx context.Context, stationID string) error
	Get(ctx context.Context, stationID string) (models.Occupancy, bool, error)
	List(ctx context.Context) ([]models.Occupancy, error)
	// ReleaseOlderThan clears every occupancy that started before cutoff and
	// returns the released entries.
	ReleaseOlderThan(ctx context.Context, cutoff time.Time) ([]models.Occupancy, error)
	// Reset drops every occupancy.
	Reset(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close() error
}

func validateIDs(stationID, operatorID string) error {
	if stationID == "" {
		return models.NewValidationError("station_id", "station id is required")
	}

	if operatorID == "" {
		return models.NewValidationError("operator_id", "operator id is required")
	}

	return nil
}
