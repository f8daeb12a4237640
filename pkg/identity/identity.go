// Package identity resolves actor ids to the role they hold on the shop floor.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jigged/shopfloor/pkg/models"
	"gopkg.in/yaml.v3"
)

// Provider supplies the identity and role of an acting operator or approver.
type Provider interface {
	// Actor returns a models.NotFoundError when id is unknown.
	Actor(ctx context.Context, id string) (models.Actor, error)
}

// Roster is the on-disk identity document.
//
//	actors:
//	  - id: owner-1
//	    name: Dana
//	    role: owner
type Roster struct {
	Actors []RosterEntry `yaml:"actors" validate:"dive"`
}

// RosterEntry is one actor of a roster file.
type RosterEntry struct {
	ID   string `yaml:"id"   validate:"required"`
	Name string `yaml:"name"`
	Role string `yaml:"role" validate:"required,oneof=owner salesperson operator"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Static is an in-memory Provider, optionally loaded from a YAML roster.
type Static struct {
	mu     sync.RWMutex
	actors map[string]models.Actor
}

// NewStatic creates a provider that knows exactly the given actors.
func NewStatic(actors ...models.Actor) *Static {
	s := &Static{actors: make(map[string]models.Actor, len(actors))}

	for _, actor := range actors {
		s.actors[actor.ID] = actor
	}

	return s
}

// ParseRoster decodes and validates a YAML roster payload.
func ParseRoster(data []byte) (*Static, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("identity: roster payload is empty")
	}

	var roster Roster

	err := yaml.Unmarshal(data, &roster)
	if err != nil {
		return nil, fmt.Errorf("identity: decode roster: %w", err)
	}

	err = validate.Struct(roster)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid roster: %w", err)
	}

	actors := make([]models.Actor, 0, len(roster.Actors))
	seen := make(map[string]bool, len(roster.Actors))

	for _, entry := range roster.Actors {
		id := strings.TrimSpace(entry.ID)
		if seen[id] {
			return nil, fmt.Errorf("identity: duplicate actor %q", id)
		}

		seen[id] = true

		actors = append(actors, models.Actor{ID: id, Name: entry.Name, Role: models.Role(entry.Role)})
	}

	return NewStatic(actors...), nil
}

// LoadRosterFile reads a YAML roster from disk.
func LoadRosterFile(path string) (*Static, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	provider, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("identity: %s: %w", path, err)
	}

	return provider, nil
}

func (s *Static) Actor(_ context.Context, id string) (models.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actor, ok := s.actors[id]
	if !ok {
		return models.Actor{}, &models.NotFoundError{Kind: "actor", ID: id}
	}

	return actor, nil
}

// Put adds or replaces an actor.
func (s *Static) Put(actor models.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actors[actor.ID] = actor
}

// Actors lists the known actors sorted by id.
func (s *Static) Actors() []models.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Actor, 0, len(s.actors))
	for _, actor := range s.actors {
		list = append(list, actor)
	}

	slices.SortFunc(list, func(a, b models.Actor) int {
		return strings.Compare(a.ID, b.ID)
	})

	return list
}

// RequireRole resolves id and checks that the actor holds role.
func RequireRole(ctx context.Context, provider Provider, id string, role models.Role, action models.Action) (models.Actor, error) {
	actor, err := provider.Actor(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return models.Actor{}, &models.ForbiddenError{ActorID: id, Action: action}
		}

		return models.Actor{}, err
	}

	if actor.Role != role {
		return models.Actor{}, &models.ForbiddenError{ActorID: id, Role: actor.Role, Action: action}
	}

	return actor, nil
}
