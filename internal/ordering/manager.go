package ordering

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

// State is the lifecycle of a sibling set as seen by the manager
type State string

const (
	StateStable     State = "stable"
	StateInProgress State = "in_progress"
)

// Manager applies ordering plans to a locked scope. It holds no state of its
// own; every call runs inside the caller's transaction.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates a manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Insert places entity into scope at the requested position and creates it.
// It returns the seq the entity was stored with.
func (m *Manager) Insert(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, entity domain.OrderedEntity, requested *int) (int, error) {
	siblings, err := m.begin(ctx, tx, scope, "insert")
	if err != nil {
		return 0, err
	}

	assigned, changes := PlanInsert(siblings, requested)

	final := append(Apply(siblings, changes), domain.Sibling{Seq: assigned})
	if err := VerifyDense(final); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", scope, err)
	}

	if err := m.write(ctx, tx, scope, changes); err != nil {
		return 0, err
	}

	entity.SetPosition(assigned)
	if err := tx.CreateEntity(ctx, entity); err != nil {
		return 0, fmt.Errorf("create in %s: %w", scope, err)
	}

	m.end(scope, "insert", len(changes))
	return assigned, nil
}

// Reposition moves id to target inside scope and returns its final seq
func (m *Manager) Reposition(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, id int64, target int) (int, error) {
	siblings, err := m.begin(ctx, tx, scope, "reposition")
	if err != nil {
		return 0, err
	}

	actual, changes, err := PlanMove(siblings, id, target)
	if err != nil {
		return 0, err
	}

	if err := VerifyDense(Apply(siblings, changes)); err != nil {
		return 0, fmt.Errorf("reposition in %s: %w", scope, err)
	}

	if err := m.write(ctx, tx, scope, changes); err != nil {
		return 0, err
	}

	m.end(scope, "reposition", len(changes))
	return actual, nil
}

// Update persists the payload of an existing entity of scope. With a target
// the entity is also moved there; without one it keeps its place. It returns
// the seq the entity was stored with.
func (m *Manager) Update(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, entity domain.OrderedEntity, target *int) (int, error) {
	siblings, err := m.begin(ctx, tx, scope, "update")
	if err != nil {
		return 0, err
	}

	id := entity.EntityID()
	to := 0
	if target != nil {
		to = *target
	} else if to, err = PositionOf(siblings, id); err != nil {
		return 0, err
	}

	actual, changes, err := PlanMove(siblings, id, to)
	if err != nil {
		return 0, err
	}

	if err := VerifyDense(Apply(siblings, changes)); err != nil {
		return 0, fmt.Errorf("update in %s: %w", scope, err)
	}

	if err := m.write(ctx, tx, scope, changes); err != nil {
		return 0, err
	}

	entity.SetPosition(actual)
	if err := tx.SaveEntity(ctx, entity); err != nil {
		return 0, fmt.Errorf("save %d in %s: %w", id, scope, err)
	}

	m.end(scope, "update", len(changes))
	return actual, nil
}

// Remove deletes id from scope and closes the gap. It returns the seq the
// item held after normalization. Removing an id that is already gone is a
// no-op that returns 0 and writes nothing.
func (m *Manager) Remove(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, id int64) (int, error) {
	siblings, err := m.begin(ctx, tx, scope, "remove")
	if err != nil {
		return 0, err
	}

	removed, changes, err := PlanRemove(siblings, id)
	if errors.Is(err, domain.ErrItemNotInScope) {
		m.logger.Debug("remove of absent item", zap.String("scope", scope.String()), zap.Int64("id", id))
		m.end(scope, "remove", 0)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := VerifyDense(Without(Apply(siblings, changes), id)); err != nil {
		return 0, fmt.Errorf("remove from %s: %w", scope, err)
	}

	if err := tx.DeleteEntity(ctx, scope, id); err != nil {
		return 0, fmt.Errorf("delete %d from %s: %w", id, scope, err)
	}
	if err := m.write(ctx, tx, scope, changes); err != nil {
		return 0, err
	}

	m.end(scope, "remove", len(changes))
	return removed, nil
}

// Normalize renumbers scope to 1..N and returns how many rows changed
func (m *Manager) Normalize(ctx context.Context, tx domain.SiblingTx, scope domain.Scope) (int, error) {
	siblings, err := m.begin(ctx, tx, scope, "normalize")
	if err != nil {
		return 0, err
	}

	changes := Normalize(siblings)
	if err := VerifyDense(Apply(siblings, changes)); err != nil {
		return 0, fmt.Errorf("normalize %s: %w", scope, err)
	}

	if err := m.write(ctx, tx, scope, changes); err != nil {
		return 0, err
	}

	m.end(scope, "normalize", len(changes))
	return len(changes), nil
}

func (m *Manager) begin(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, op string) ([]domain.Sibling, error) {
	siblings, err := tx.LockSiblings(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", scope, err)
	}
	m.logger.Debug("scope state",
		zap.String("scope", scope.String()),
		zap.String("op", op),
		zap.String("state", string(StateInProgress)),
		zap.Int("siblings", len(siblings)),
	)
	return siblings, nil
}

func (m *Manager) end(scope domain.Scope, op string, writes int) {
	m.logger.Debug("scope state",
		zap.String("scope", scope.String()),
		zap.String("op", op),
		zap.String("state", string(StateStable)),
		zap.Int("writes", writes),
	)
}

func (m *Manager) write(ctx context.Context, tx domain.SiblingTx, scope domain.Scope, changes []domain.SeqChange) error {
	for _, c := range changes {
		if err := tx.WriteSeq(ctx, scope, c.ID, c.To); err != nil {
			return fmt.Errorf("write seq of %d in %s: %w", c.ID, scope, err)
		}
	}
	return nil
}
