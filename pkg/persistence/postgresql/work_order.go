package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

const workOrderColumns = `
			id
		  , order_number
		  , template_id
		  , customer_id
		  , sales_person_id
		  , status
		  , estimated_price
		  , actual_price
		  , requested_at
		  , approved_at
		  , approved_by
		  , rejected_at
		  , rejected_by
		  , rejection_reason
		  , finished_at
		  , current_stations
		  , station_history
		  , version
		  , updated_at`

// WorkOrderRepository handles work order database operations.
type WorkOrderRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkOrderRepository creates a new work order repository.
func NewWorkOrderRepository(db *sql.DB, logger *slog.Logger) *WorkOrderRepository {
	return &WorkOrderRepository{db: db, logger: logger}
}

func (r *WorkOrderRepository) GetByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	query := `SELECT` + workOrderColumns + `
		FROM work_orders
		WHERE id = $1
	`

	order, err := r.scanWorkOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan work order: %w", err)
	}

	return order, nil
}

func (r *WorkOrderRepository) List(ctx context.Context, filter persistence.WorkOrderFilter) ([]*models.WorkOrder, error) {
	query, args := r.buildListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work orders: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	orders := make([]*models.WorkOrder, 0)

	for rows.Next() {
		order, err := r.scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}

		orders = append(orders, order)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating work orders: %w", err)
	}

	return orders, nil
}

// buildListQuery renders the filtered listing with positional arguments.
func (r *WorkOrderRepository) buildListQuery(filter persistence.WorkOrderFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	if filter.TemplateID != "" {
		args = append(args, filter.TemplateID)
		conditions = append(conditions, "template_id = $"+strconv.Itoa(len(args)))
	}

	if filter.OrderNumberContains != "" {
		args = append(args, "%"+escapeLike(filter.OrderNumberContains)+"%")
		conditions = append(conditions, "order_number ILIKE $"+strconv.Itoa(len(args)))
	}

	if filter.CurrentStation != "" {
		station, _ := json.Marshal([]string{filter.CurrentStation})
		args = append(args, string(station))
		conditions = append(conditions, "current_stations @> $"+strconv.Itoa(len(args))+"::jsonb")
	}

	var builder strings.Builder

	builder.WriteString(`SELECT` + workOrderColumns + `
		FROM work_orders`)

	if len(conditions) > 0 {
		builder.WriteString("\n\t\tWHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	builder.WriteString("\n\t\tORDER BY requested_at ASC, order_number ASC")

	return builder.String(), args
}

func (r *WorkOrderRepository) Create(ctx context.Context, order *models.WorkOrder) error {
	order.Version = 1
	order.UpdatedAt = time.Now().UTC()

	currentStations, stationHistory, err := marshalProgress(order)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO work_orders (` + workOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.TemplateID,
		order.CustomerID,
		order.SalesPersonID,
		string(order.Status),
		order.EstimatedPrice,
		order.ActualPrice,
		order.RequestedAt,
		order.ApprovedAt,
		order.ApprovedBy,
		order.RejectedAt,
		order.RejectedBy,
		order.RejectionReason,
		order.FinishedAt,
		currentStations,
		stationHistory,
		order.Version,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "work_order", order.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to insert work order: %w", err)
	}

	return nil
}

// Update writes order only when the stored row still carries expectedVersion.
func (r *WorkOrderRepository) Update(ctx context.Context, order *models.WorkOrder, expectedVersion int64) error {
	currentStations, stationHistory, err := marshalProgress(order)
	if err != nil {
		return err
	}

	updatedAt := time.Now().UTC()

	query := `
		UPDATE work_orders SET
			status = $3,
			actual_price = $4,
			approved_at = $5,
			approved_by = $6,
			rejected_at = $7,
			rejected_by = $8,
			rejection_reason = $9,
			finished_at = $10,
			current_stations = $11,
			station_history = $12,
			version = version + 1,
			updated_at = $13
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		expectedVersion,
		string(order.Status),
		order.ActualPrice,
		order.ApprovedAt,
		order.ApprovedBy,
		order.RejectedAt,
		order.RejectedBy,
		order.RejectionReason,
		order.FinishedAt,
		currentStations,
		stationHistory,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update work order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var exists bool

		err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM work_orders WHERE id = $1)", order.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check work order existence: %w", err)
		}

		if !exists {
			return persistence.NewRecordError("Update", "work_order", order.ID, persistence.ErrWorkOrderNotFound)
		}

		return persistence.NewRecordError("Update", "work_order", order.ID, persistence.ErrStaleWorkOrder)
	}

	order.Version = expectedVersion + 1
	order.UpdatedAt = updatedAt

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkOrderRepository) scanWorkOrder(row rowScanner) (*models.WorkOrder, error) {
	var (
		order           models.WorkOrder
		status          string
		actualPrice     sql.NullInt64
		approvedAt      sql.NullTime
		rejectedAt      sql.NullTime
		finishedAt      sql.NullTime
		currentStations []byte
		stationHistory  []byte
	)

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.TemplateID,
		&order.CustomerID,
		&order.SalesPersonID,
		&status,
		&order.EstimatedPrice,
		&actualPrice,
		&order.RequestedAt,
		&approvedAt,
		&order.ApprovedBy,
		&rejectedAt,
		&order.RejectedBy,
		&order.RejectionReason,
		&finishedAt,
		&currentStations,
		&stationHistory,
		&order.Version,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = models.WorkOrderStatus(status)
	order.ActualPrice = nullInt(actualPrice)
	order.ApprovedAt = nullTime(approvedAt)
	order.RejectedAt = nullTime(rejectedAt)
	order.FinishedAt = nullTime(finishedAt)

	err = json.Unmarshal(currentStations, &order.CurrentStations)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal current stations: %w", err)
	}

	err = json.Unmarshal(stationHistory, &order.StationHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal station history: %w", err)
	}

	return &order, nil
}

func marshalProgress(order *models.WorkOrder) ([]byte, []byte, error) {
	current := order.CurrentStations
	if current == nil {
		current = []string{}
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal current stations: %w", err)
	}

	history := order.StationHistory
	if history == nil {
		history = []models.StationHistoryEntry{}
	}

	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal station history: %w", err)
	}

	return currentJSON, historyJSON, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}

	return &v.Int64
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}

	t := v.Time.UTC()

	return &t
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return replacer.Replace(s)
}
