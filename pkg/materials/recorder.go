// Package materials turns operator-reported consumption into the usage list
// stored on a station history entry. It never touches inventory balances.
package materials

import (
	"fmt"
	"math"
	"strings"

	"github.com/jigged/shopfloor/pkg/models"
)

// Recorder builds materialsUsed lists for completed station steps.
type Recorder struct{}

// NewRecorder creates a material consumption recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record merges the node's declared requirements with the quantities the
// operator reported. Declared materials come first in declaration order and
// default to their required quantity; reported quantities override them.
// Undeclared materials (substitutions) follow in reported order. Repeated
// reports of one material are summed.
func (r *Recorder) Record(node models.FlowNode, actuals []models.MaterialUsage) ([]models.MaterialUsage, error) {
	payload, ok := node.Station()
	if !ok {
		return nil, models.NewValidationError("node", fmt.Sprintf("node %s is not a station node", node.ID))
	}

	reported := make(map[string]float64, len(actuals))
	reportedOrder := make([]string, 0, len(actuals))

	for i, usage := range actuals {
		materialID := strings.TrimSpace(usage.MaterialID)
		if materialID == "" {
			return nil, models.NewValidationError(fmt.Sprintf("materials[%d].material_id", i), "material id is required")
		}

		if math.IsNaN(usage.Qty) || math.IsInf(usage.Qty, 0) {
			return nil, models.NewValidationError(fmt.Sprintf("materials[%d].qty", i), "quantity must be a finite number")
		}

		if usage.Qty < 0 {
			return nil, models.NewValidationError(fmt.Sprintf("materials[%d].qty", i), "quantity cannot be negative")
		}

		if _, seen := reported[materialID]; !seen {
			reportedOrder = append(reportedOrder, materialID)
		}

		reported[materialID] += usage.Qty
	}

	used := make([]models.MaterialUsage, 0, len(payload.Materials)+len(reportedOrder))
	declared := make(map[string]bool, len(payload.Materials))

	for _, requirement := range payload.Materials {
		if declared[requirement.MaterialID] {
			continue
		}

		declared[requirement.MaterialID] = true

		qty, ok := reported[requirement.MaterialID]
		if !ok {
			qty = requirement.RequiredQty
		}

		used = append(used, models.MaterialUsage{MaterialID: requirement.MaterialID, Qty: qty})
	}

	for _, materialID := range reportedOrder {
		if declared[materialID] {
			continue
		}

		used = append(used, models.MaterialUsage{MaterialID: materialID, Qty: reported[materialID]})
	}

	return used, nil
}
