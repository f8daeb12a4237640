package engine_test

import (
	"context"
	"testing"

	"github.com/jigged/shopfloor/pkg/engine"
	"github.com/jigged/shopfloor/pkg/events"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopWork_LeavesStepOpen(t *testing.T) {
	f := newFixture(t)
	f.linear(t)

	ctx := context.Background()
	order := f.approvedOrder(t, "linear")

	_, err := f.engine.StartWork(ctx, order.ID, "A", "op-1")
	require.NoError(t, err)

	active, err := f.engine.ActiveSession(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.Covers(order.ID, "A"))

	_, err = f.engine.StopWork(ctx, order.ID, "B", "op-1", "")
	assert.True(t, models.IsNotFound(err), "the session is for A")

	stopped, err := f.engine.StopWork(ctx, order.ID, "A", "op-1", "  out of steel  ")
	require.NoError(t, err)
	assert.Equal(t, active.ID, stopped.ID)
	assert.Equal(t, models.SessionStopped, stopped.EndReason)
	assert.Equal(t, "out of steel", stopped.Notes)
	require.NotNil(t, stopped.EndedAt)

	_, held, err := f.registry.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, held, "stopping releases the station")

	stored, err := f.engine.WorkOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkOrderStatusInProgress, stored.Status)
	assert.Equal(t, []string{"A"}, stored.CurrentStations)
	assert.Equal(t, 0, stored.OpenEntryIndex("A"))

	idle, err := f.engine.ActiveSession(ctx, "op-1")
	require.NoError(t, err)
	assert.Nil(t, idle)

	_, err = f.engine.StopWork(ctx, order.ID, "A", "op-1", "")
	assert.True(t, models.IsNotFound(err), "nothing left to stop")

	resumed, err := f.engine.StartWork(ctx, order.ID, "A", "op-2")
	require.NoError(t, err)
	assert.Equal(t, "op-2", resumed.StationHistory[0].OperatorID)

	assert.Contains(t, f.events.Types(), events.StationStoppedEvent)

	_, err = f.engine.StopWork(ctx, order.ID, "A", "ghost", "")
	assert.True(t, models.IsNotFound(err))
}

func TestStartWork_SwitchesSession(t *testing.T) {
	f := newFixture(t)
	f.linear(t)

	ctx := context.Background()
	first := f.approvedOrder(t, "linear")
	second := f.approvedOrder(t, "linear")

	_, err := f.engine.Occupy(ctx, "B", "op-1")
	require.NoError(t, err)

	_, err = f.engine.StartWork(ctx, first.ID, "A", "op-1")
	require.NoError(t, err)

	_, held, err := f.registry.Get(ctx, "B")
	require.NoError(t, err)
	assert.False(t, held, "starting work releases the operator's other stations")

	// Restarting the same step keeps the session.
	_, err = f.engine.StartWork(ctx, first.ID, "A", "op-1")
	require.NoError(t, err)

	_, err = f.engine.StartWork(ctx, second.ID, "A", "op-1")
	require.NoError(t, err)

	holder, held, err := f.registry.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "op-1", holder.OperatorID)

	sessions, err := f.engine.OperatorSessions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.True(t, sessions[0].Active())
	assert.Equal(t, second.ID, sessions[0].WorkOrderID)
	assert.Equal(t, first.ID, sessions[1].WorkOrderID)
	assert.Equal(t, models.SessionSwitched, sessions[1].EndReason)

	none, err := f.engine.OperatorSessions(ctx, "op-2")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.engine.OperatorSessions(ctx, "ghost")
	assert.True(t, models.IsNotFound(err))
}

func TestCompleteStep_EndsSessionWithQuantities(t *testing.T) {
	f := newFixture(t)
	f.linear(t)

	ctx := context.Background()
	order := f.approvedOrder(t, "linear")

	_, err := f.engine.StartWork(ctx, order.ID, "A", "op-1")
	require.NoError(t, err)

	order, err = f.engine.CompleteStep(ctx, order.ID, "A", engine.CompleteStepRequest{
		QuantityCompleted: 8,
		QuantityScrapped:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), order.StationHistory[0].QuantityCompleted)
	assert.Equal(t, int64(2), order.StationHistory[0].QuantityScrapped)

	active, err := f.engine.ActiveSession(ctx, "op-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	sessions, err := f.engine.OperatorSessions(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionCompleted, sessions[0].EndReason)

	_, err = f.engine.CompleteStep(ctx, order.ID, "B", engine.CompleteStepRequest{OperatorID: "op-2", QuantityScrapped: -1})
	assert.True(t, models.IsValidation(err))
}

func TestStationQueue(t *testing.T) {
	f := newFixture(t)
	f.linear(t)

	ctx := context.Background()
	waiting := f.approvedOrder(t, "linear")
	working := f.approvedOrder(t, "linear")

	_, err := f.engine.SubmitWorkOrder(ctx, engine.SubmitWorkOrderRequest{TemplateID: "linear", CustomerID: "c"})
	require.NoError(t, err)

	_, err = f.engine.StartWork(ctx, working.ID, "A", "op-1")
	require.NoError(t, err)

	queue, err := f.engine.StationQueue(ctx, "A")
	require.NoError(t, err)
	require.Len(t, queue, 2, "requested orders are not queued")

	assert.Equal(t, working.ID, queue[0].WorkOrder.ID)
	assert.Equal(t, "op-1", queue[0].OperatorID)
	assert.Equal(t, "Ana", queue[0].OperatorName)
	require.NotNil(t, queue[0].StartedAt)

	assert.Equal(t, waiting.ID, queue[1].WorkOrder.ID)
	assert.Empty(t, queue[1].OperatorID)
	assert.Nil(t, queue[1].StartedAt)

	downstream, err := f.engine.StationQueue(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, downstream)

	_, err = f.engine.CompleteStep(ctx, working.ID, "A", engine.CompleteStepRequest{})
	require.NoError(t, err)

	downstream, err = f.engine.StationQueue(ctx, "B")
	require.NoError(t, err)
	require.Len(t, downstream, 1)
	assert.Equal(t, working.ID, downstream[0].WorkOrder.ID)
	assert.Empty(t, downstream[0].OperatorName, "activated but not started")

	_, err = f.engine.StationQueue(ctx, "X")
	assert.True(t, models.IsNotFound(err))
}
