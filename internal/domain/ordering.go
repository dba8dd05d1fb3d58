package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownFamily is returned when a family name is not registered
	ErrUnknownFamily = errors.New("unknown entity family")

	// ErrEntityNotFound is returned when an entity id does not resolve to a row
	ErrEntityNotFound = errors.New("entity not found")

	// ErrItemNotInScope is returned when a reposition or remove targets an id
	// that is not a member of the locked sibling set
	ErrItemNotInScope = errors.New("item is not a member of the scope")

	// ErrInvalidScope is returned when an entity lacks the fields its scope needs
	ErrInvalidScope = errors.New("invalid scope")

	// ErrDensityViolated is returned when a planned sibling state is not 1..N
	ErrDensityViolated = errors.New("sibling sequence is not dense")

	// ErrInvalidInput is returned for malformed payloads
	ErrInvalidInput = errors.New("invalid input")

	// ErrScopeChange is returned when an update would move an entity into
	// another sibling set
	ErrScopeChange = errors.New("scope fields cannot be changed")

	// ErrRateLimited is returned when no operation slot frees up in time
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ScopeCond is one column of a scope key. A nil Value means IS NULL.
type ScopeCond struct {
	Column string
	Value  interface{}
}

// Scope identifies a sibling set: every row of Table matching all Conds.
type Scope struct {
	Family    string
	Table     string
	SeqColumn string
	Conds     []ScopeCond
}

// Key returns the lock and cache identity of the scope. Two families sharing
// a table share a key. String values are quoted so that a value containing
// the separators cannot collide with another scope.
func (s Scope) Key() string {
	var b strings.Builder
	b.WriteString(s.Table)
	for _, c := range s.Conds {
		b.WriteByte('|')
		b.WriteString(c.Column)
		if c.Value == nil {
			b.WriteString(" is null")
			continue
		}
		b.WriteByte('=')
		if v, ok := c.Value.(string); ok {
			b.WriteString(strconv.Quote(v))
			continue
		}
		b.WriteString(fmt.Sprint(c.Value))
	}
	return b.String()
}

// String implements fmt.Stringer
func (s Scope) String() string {
	return s.Family + "@" + s.Key()
}

// Sibling is the ordering view of one member of a scope
type Sibling struct {
	ID  int64 `json:"id"`
	Seq int   `json:"seq"`
}

// SeqChange is a single planned seq write
type SeqChange struct {
	ID   int64
	From int
	To   int
}

// OrderedEntity is implemented by every model that carries a sibling seq
type OrderedEntity interface {
	// EntityID returns the store-assigned id (zero before creation)
	EntityID() int64

	// Position returns the current seq value
	Position() int

	// SetPosition overwrites the seq value
	SetPosition(seq int)
}

// Family describes one ordered entity family: where its rows live and how an
// entity resolves to its sibling scope.
type Family struct {
	Name      string
	Table     string
	SeqColumn string

	// New returns a pointer to a zero model of the family
	New func() OrderedEntity

	// ScopeOf resolves the scope an entity belongs to
	ScopeOf func(OrderedEntity) (Scope, error)
}

// Scope builds a scope of this family from its conditions
func (f Family) Scope(conds ...ScopeCond) Scope {
	return Scope{
		Family:    f.Name,
		Table:     f.Table,
		SeqColumn: f.SeqColumn,
		Conds:     conds,
	}
}

// FamilyRegistry looks families up by name
type FamilyRegistry interface {
	Lookup(name string) (Family, error)
	Names() []string
}
