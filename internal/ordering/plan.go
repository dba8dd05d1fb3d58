// Package ordering keeps sibling sets densely numbered 1..N.
//
// The planners in this file are pure: they take the locked sibling set of one
// scope and return the seq writes that realize an operation. Manager applies
// those writes through a transaction.
package ordering

import (
	"fmt"
	"sort"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

// Sorted returns a copy of siblings ordered by seq, then id
func Sorted(siblings []domain.Sibling) []domain.Sibling {
	out := make([]domain.Sibling, len(siblings))
	copy(out, siblings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Normalize renumbers siblings to 1..N keeping their current relative order.
// Only rows whose seq actually changes are returned.
func Normalize(siblings []domain.Sibling) []domain.SeqChange {
	_, changes := normalized(siblings)
	return changes
}

// normalized returns the siblings sorted and renumbered together with the
// writes that took them there
func normalized(siblings []domain.Sibling) ([]domain.Sibling, []domain.SeqChange) {
	sorted := Sorted(siblings)
	var changes []domain.SeqChange
	for i := range sorted {
		want := i + 1
		if sorted[i].Seq != want {
			changes = append(changes, domain.SeqChange{ID: sorted[i].ID, From: sorted[i].Seq, To: want})
			sorted[i].Seq = want
		}
	}
	return sorted, changes
}

// PlanInsert picks the seq of a new sibling. A missing, non-positive or
// out-of-range position appends. Otherwise every sibling at or after the
// position moves down by one.
func PlanInsert(siblings []domain.Sibling, requested *int) (int, []domain.SeqChange) {
	dense, changes := normalized(siblings)
	n := len(dense)

	if requested == nil || *requested <= 0 || *requested > n {
		return n + 1, changes
	}

	p := *requested
	shifted := make([]domain.Sibling, len(dense))
	copy(shifted, dense)
	for i := p - 1; i < n; i++ {
		shifted[i].Seq++
	}
	return p, diff(siblings, shifted)
}

// PlanMove moves id to target with a range shift: only the siblings between
// the old and new position move, by exactly one. The target is clamped to
// [1, N]. It returns the seq the item ends up with.
func PlanMove(siblings []domain.Sibling, id int64, target int) (int, []domain.SeqChange, error) {
	dense, _ := normalized(siblings)
	n := len(dense)

	idx := indexOf(dense, id)
	if idx < 0 {
		return 0, nil, fmt.Errorf("move %d: %w", id, domain.ErrItemNotInScope)
	}

	target = clamp(target, 1, n)
	current := idx + 1

	moved := make([]domain.Sibling, len(dense))
	copy(moved, dense)
	switch {
	case target < current:
		for i := target - 1; i < current-1; i++ {
			moved[i].Seq++
		}
	case target > current:
		for i := current; i < target; i++ {
			moved[i].Seq--
		}
	}
	moved[idx].Seq = target

	return target, diff(siblings, moved), nil
}

// PositionOf returns the 1-based place of id once siblings are normalized
func PositionOf(siblings []domain.Sibling, id int64) (int, error) {
	idx := indexOf(Sorted(siblings), id)
	if idx < 0 {
		return 0, fmt.Errorf("position of %d: %w", id, domain.ErrItemNotInScope)
	}
	return idx + 1, nil
}

// PlanRemove closes the gap left by id. The removed row itself is not part of
// the returned writes; its normalized seq is returned instead.
func PlanRemove(siblings []domain.Sibling, id int64) (int, []domain.SeqChange, error) {
	dense, _ := normalized(siblings)

	idx := indexOf(dense, id)
	if idx < 0 {
		return 0, nil, fmt.Errorf("remove %d: %w", id, domain.ErrItemNotInScope)
	}

	rest := make([]domain.Sibling, 0, len(dense)-1)
	rest = append(rest, dense[:idx]...)
	for _, s := range dense[idx+1:] {
		s.Seq--
		rest = append(rest, s)
	}

	return idx + 1, diff(siblings, rest), nil
}

// Apply returns siblings with changes applied. Ids missing from siblings are
// ignored.
func Apply(siblings []domain.Sibling, changes []domain.SeqChange) []domain.Sibling {
	to := make(map[int64]int, len(changes))
	for _, c := range changes {
		to[c.ID] = c.To
	}
	out := make([]domain.Sibling, len(siblings))
	for i, s := range siblings {
		if seq, ok := to[s.ID]; ok {
			s.Seq = seq
		}
		out[i] = s
	}
	return out
}

// Without returns siblings minus the member with id
func Without(siblings []domain.Sibling, id int64) []domain.Sibling {
	out := make([]domain.Sibling, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// VerifyDense checks that the seq values are exactly 1..N with no gaps or
// duplicates
func VerifyDense(siblings []domain.Sibling) error {
	n := len(siblings)
	seen := make([]bool, n+1)
	for _, s := range siblings {
		if s.Seq < 1 || s.Seq > n {
			return fmt.Errorf("id %d has seq %d outside 1..%d: %w", s.ID, s.Seq, n, domain.ErrDensityViolated)
		}
		if seen[s.Seq] {
			return fmt.Errorf("seq %d assigned twice: %w", s.Seq, domain.ErrDensityViolated)
		}
		seen[s.Seq] = true
	}
	return nil
}

// diff compares the final state against the original rows and returns the
// writes needed, in the order of final
func diff(original, final []domain.Sibling) []domain.SeqChange {
	from := make(map[int64]int, len(original))
	for _, s := range original {
		from[s.ID] = s.Seq
	}
	var changes []domain.SeqChange
	for _, s := range final {
		if was, ok := from[s.ID]; !ok || was != s.Seq {
			changes = append(changes, domain.SeqChange{ID: s.ID, From: was, To: s.Seq})
		}
	}
	return changes
}

func indexOf(siblings []domain.Sibling, id int64) int {
	for i, s := range siblings {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
