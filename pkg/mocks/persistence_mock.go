package mocks

import (
	"context"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkOrderRepository is a mock implementation of persistence.WorkOrderRepository.
type MockWorkOrderRepository struct {
	mock.Mock
}

func (m *MockWorkOrderRepository) GetByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkOrder).Clone(), args.Error(1)
}

func (m *MockWorkOrderRepository) List(ctx context.Context, filter persistence.WorkOrderFilter) ([]*models.WorkOrder, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkOrder), args.Error(1)
}

func (m *MockWorkOrderRepository) Create(ctx context.Context, order *models.WorkOrder) error {
	args := m.Called(ctx, order)

	return args.Error(0)
}

func (m *MockWorkOrderRepository) Update(ctx context.Context, order *models.WorkOrder, expectedVersion int64) error {
	args := m.Called(ctx, order, expectedVersion)

	return args.Error(0)
}

// MockTemplateRepository is a mock implementation of persistence.TemplateRepository.
type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Create(ctx context.Context, template *models.WorkflowTemplate) error {
	args := m.Called(ctx, template)

	return args.Error(0)
}

// MockStationRepository is a mock implementation of persistence.StationRepository.
type MockStationRepository struct {
	mock.Mock
}

func (m *MockStationRepository) GetByID(ctx context.Context, id string) (*models.StationDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.StationDefinition), args.Error(1)
}

func (m *MockStationRepository) List(ctx context.Context) ([]*models.StationDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StationDefinition), args.Error(1)
}

func (m *MockStationRepository) Create(ctx context.Context, station *models.StationDefinition) error {
	args := m.Called(ctx, station)

	return args.Error(0)
}

// MockSessionRepository is a mock implementation of persistence.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Active(ctx context.Context, operatorID string) (*models.WorkSession, error) {
	args := m.Called(ctx, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkSession), args.Error(1)
}

func (m *MockSessionRepository) ListByOperator(ctx context.Context, operatorID string) ([]*models.WorkSession, error) {
	args := m.Called(ctx, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkSession), args.Error(1)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.WorkSession) error {
	args := m.Called(ctx, session)

	return args.Error(0)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *models.WorkSession) error {
	args := m.Called(ctx, session)

	return args.Error(0)
}

// MockPersistence wires the repository mocks into a persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	WorkOrderRepo *MockWorkOrderRepository
	TemplateRepo  *MockTemplateRepository
	StationRepo   *MockStationRepository
	SessionRepo   *MockSessionRepository
}

// NewMockPersistence creates a MockPersistence with empty repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkOrderRepo: &MockWorkOrderRepository{},
		TemplateRepo:  &MockTemplateRepository{},
		StationRepo:   &MockStationRepository{},
		SessionRepo:   &MockSessionRepository{},
	}
}

func (m *MockPersistence) WorkOrders() persistence.WorkOrderRepository {
	return m.WorkOrderRepo
}

func (m *MockPersistence) Templates() persistence.TemplateRepository {
	return m.TemplateRepo
}

func (m *MockPersistence) Stations() persistence.StationRepository {
	return m.StationRepo
}

func (m *MockPersistence) Sessions() persistence.SessionRepository {
	return m.SessionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
