package file

import (
	"context"
	"slices"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// SessionRepository handles operator work session file operations.
type SessionRepository struct {
	store *Persistence
}

func (r *SessionRepository) Active(_ context.Context, operatorID string) (*models.WorkSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sessions, err := r.byOperator(operatorID)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		if session.Active() {
			return session, nil
		}
	}

	return nil, nil
}

func (r *SessionRepository) ListByOperator(_ context.Context, operatorID string) ([]*models.WorkSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.byOperator(operatorID)
}

func (r *SessionRepository) Create(_ context.Context, session *models.WorkSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.exists(sessionsDir, session.ID) {
		return persistence.NewRecordError("Create", "session", session.ID, persistence.ErrAlreadyExists)
	}

	if session.Active() {
		sessions, err := r.byOperator(session.OperatorID)
		if err != nil {
			return err
		}

		if slices.ContainsFunc(sessions, (*models.WorkSession).Active) {
			return persistence.NewRecordError("Create", "session", session.ID, persistence.ErrAlreadyExists)
		}
	}

	return r.store.write(sessionsDir, session.ID, session)
}

func (r *SessionRepository) Update(_ context.Context, session *models.WorkSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if !r.store.exists(sessionsDir, session.ID) {
		return persistence.NewRecordError("Update", "session", session.ID, persistence.ErrSessionNotFound)
	}

	return r.store.write(sessionsDir, session.ID, session)
}

// byOperator scans every session file; callers hold the store lock.
func (r *SessionRepository) byOperator(operatorID string) ([]*models.WorkSession, error) {
	ids, err := r.store.ids(sessionsDir)
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.WorkSession, 0)

	for _, id := range ids {
		var session models.WorkSession

		found, err := r.store.read(sessionsDir, id, &session)
		if err != nil {
			return nil, err
		}

		if found && session.OperatorID == operatorID {
			sessions = append(sessions, &session)
		}
	}

	slices.SortStableFunc(sessions, func(a, b *models.WorkSession) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return sessions, nil
}
