package ordering

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

func sibs(seqs ...int) []domain.Sibling {
	out := make([]domain.Sibling, len(seqs))
	for i, s := range seqs {
		out[i] = domain.Sibling{ID: int64(i + 1), Seq: s}
	}
	return out
}

func intPtr(v int) *int { return &v }

// order returns ids sorted by seq
func order(siblings []domain.Sibling) []int64 {
	sorted := Sorted(siblings)
	ids := make([]int64, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ID
	}
	return ids
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      []domain.Sibling
		changes int
		order   []int64
	}{
		{"empty", nil, 0, []int64{}},
		{"dense", sibs(1, 2, 3), 0, []int64{1, 2, 3}},
		{"gaps", sibs(2, 5, 9), 3, []int64{1, 2, 3}},
		{"duplicates broken by id", sibs(1, 1, 2), 2, []int64{1, 2, 3}},
		{"zero seqs", sibs(0, 0, 0), 3, []int64{1, 2, 3}},
		{"reverse", sibs(3, 2, 1), 0, []int64{3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := Normalize(tt.in)
			assert.Len(t, changes, tt.changes)

			final := Apply(tt.in, changes)
			require.NoError(t, VerifyDense(final))
			assert.Equal(t, tt.order, order(final))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := sibs(4, 4, 10, 0)
	once := Apply(in, Normalize(in))
	assert.Empty(t, Normalize(once))
}

func TestPlanInsert(t *testing.T) {
	tests := []struct {
		name      string
		in        []domain.Sibling
		requested *int
		assigned  int
		final     []int
	}{
		{"empty scope appends", nil, nil, 1, []int{}},
		{"nil appends", sibs(1, 2, 3), nil, 4, []int{1, 2, 3}},
		{"zero appends", sibs(1, 2, 3), intPtr(0), 4, []int{1, 2, 3}},
		{"negative appends", sibs(1, 2, 3), intPtr(-7), 4, []int{1, 2, 3}},
		{"beyond end appends", sibs(1, 2, 3), intPtr(9), 4, []int{1, 2, 3}},
		{"n plus one appends", sibs(1, 2, 3), intPtr(4), 4, []int{1, 2, 3}},
		{"front", sibs(1, 2, 3), intPtr(1), 1, []int{2, 3, 4}},
		{"middle", sibs(1, 2, 3), intPtr(2), 2, []int{1, 3, 4}},
		{"last", sibs(1, 2, 3), intPtr(3), 3, []int{1, 2, 4}},
		{"heals gaps first", sibs(10, 20, 30), intPtr(2), 2, []int{1, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assigned, changes := PlanInsert(tt.in, tt.requested)
			assert.Equal(t, tt.assigned, assigned)

			final := Apply(tt.in, changes)
			got := make([]int, len(final))
			for i, s := range final {
				got[i] = s.Seq
			}
			assert.Equal(t, tt.final, got)
			assert.NoError(t, VerifyDense(append(final, domain.Sibling{Seq: assigned})))
		})
	}
}

func TestPlanMove(t *testing.T) {
	tests := []struct {
		name   string
		id     int64
		target int
		actual int
		order  []int64
	}{
		{"up", 3, 1, 1, []int64{3, 1, 2, 4}},
		{"down", 1, 3, 3, []int64{2, 3, 1, 4}},
		{"same place", 2, 2, 2, []int64{1, 2, 3, 4}},
		{"clamped low", 4, -3, 1, []int64{4, 1, 2, 3}},
		{"clamped high", 1, 99, 4, []int64{2, 3, 4, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sibs(1, 2, 3, 4)
			actual, changes, err := PlanMove(in, tt.id, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.actual, actual)

			final := Apply(in, changes)
			require.NoError(t, VerifyDense(final))
			assert.Equal(t, tt.order, order(final))
		})
	}
}

func TestPlanMoveTouchesOnlyTheRange(t *testing.T) {
	in := sibs(1, 2, 3, 4, 5, 6)

	_, changes, err := PlanMove(in, 5, 2)
	require.NoError(t, err)

	touched := map[int64]bool{}
	for _, c := range changes {
		touched[c.ID] = true
	}
	assert.Equal(t, map[int64]bool{2: true, 3: true, 4: true, 5: true}, touched)
}

func TestPlanMoveNotInScope(t *testing.T) {
	_, changes, err := PlanMove(sibs(1, 2), 42, 1)
	assert.ErrorIs(t, err, domain.ErrItemNotInScope)
	assert.Empty(t, changes)
}

func TestPlanRemove(t *testing.T) {
	in := sibs(1, 2, 3, 4)

	removed, changes, err := PlanRemove(in, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	final := Without(Apply(in, changes), 2)
	require.NoError(t, VerifyDense(final))
	assert.Equal(t, []int64{1, 3, 4}, order(final))
}

func TestPlanRemoveLastAndOnly(t *testing.T) {
	removed, changes, err := PlanRemove(sibs(1), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, changes)

	_, _, err = PlanRemove(nil, 1)
	assert.ErrorIs(t, err, domain.ErrItemNotInScope)
}

// TestMoveThenRemove walks the A,B,C,D scenario: move C to the front, then
// remove A.
func TestMoveThenRemove(t *testing.T) {
	const a, b, c, d = 1, 2, 3, 4
	state := sibs(1, 2, 3, 4)

	actual, changes, err := PlanMove(state, c, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, actual)
	state = Apply(state, changes)
	assert.Equal(t, []int64{c, a, b, d}, order(state))

	_, changes, err = PlanRemove(state, a)
	require.NoError(t, err)
	state = Without(Apply(state, changes), a)
	require.NoError(t, VerifyDense(state))
	assert.Equal(t, []int64{c, b, d}, order(state))
}

func TestVerifyDense(t *testing.T) {
	assert.NoError(t, VerifyDense(nil))
	assert.NoError(t, VerifyDense(sibs(2, 1, 3)))
	assert.ErrorIs(t, VerifyDense(sibs(1, 3)), domain.ErrDensityViolated)
	assert.ErrorIs(t, VerifyDense(sibs(1, 1)), domain.ErrDensityViolated)
	assert.ErrorIs(t, VerifyDense(sibs(0, 1)), domain.ErrDensityViolated)
}

// TestRandomOperationsStayDense applies long random operation sequences and
// checks density and relative order after every step.
func TestRandomOperationsStayDense(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		state := sibs(5, 5, 1, 9)
		state = Apply(state, Normalize(state))
		nextID := int64(len(state) + 1)

		for step := 0; step < 200; step++ {
			before := order(state)

			switch op := rng.Intn(3); {
			case op == 0 || len(state) == 0:
				req := rng.Intn(len(state)+3) - 1
				assigned, changes := PlanInsert(state, &req)
				state = append(Apply(state, changes), domain.Sibling{ID: nextID, Seq: assigned})
				nextID++

				assert.Equal(t, before, removeID(order(state), nextID-1))

			case op == 1:
				victim := state[rng.Intn(len(state))].ID
				target := rng.Intn(len(state)+4) - 2
				_, changes, err := PlanMove(state, victim, target)
				require.NoError(t, err)
				state = Apply(state, changes)

				assert.Equal(t, removeID(before, victim), removeID(order(state), victim))

			default:
				victim := state[rng.Intn(len(state))].ID
				_, changes, err := PlanRemove(state, victim)
				require.NoError(t, err)
				state = Without(Apply(state, changes), victim)

				assert.Equal(t, removeID(before, victim), order(state))
			}

			require.NoError(t, VerifyDense(state), "round %d step %d", round, step)
		}
	}
}

func removeID(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
