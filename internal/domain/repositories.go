package domain

import "context"

// SiblingTx is the transaction-scoped view of a store used by the ordering
// manager. Every method runs inside the transaction that holds the scope lock.
type SiblingTx interface {
	// LockSiblings returns the members of the scope ordered by seq, id and
	// holds them locked until the transaction ends
	LockSiblings(ctx context.Context, scope Scope) ([]Sibling, error)

	// WriteSeq sets the seq of one member
	WriteSeq(ctx context.Context, scope Scope, id int64, seq int) error

	// CreateEntity inserts a new entity, assigning its id
	CreateEntity(ctx context.Context, entity OrderedEntity) error

	// SaveEntity persists the payload fields of an existing entity
	SaveEntity(ctx context.Context, entity OrderedEntity) error

	// DeleteEntity deletes one member of the scope
	DeleteEntity(ctx context.Context, scope Scope, id int64) error
}

// SiblingStore is the persistence contract of the ordering subsystem
type SiblingStore interface {
	// InScope runs fn in one atomic transaction holding the write lock of the
	// whole sibling set. An error from fn rolls everything back.
	InScope(ctx context.Context, scope Scope, fn func(tx SiblingTx) error) error

	// Load reads one entity of a family by id
	Load(ctx context.Context, family Family, id int64) (OrderedEntity, error)

	// Siblings reads the committed members of a scope without locking
	Siblings(ctx context.Context, scope Scope) ([]Sibling, error)

	// Scopes lists every distinct scope that currently has members
	Scopes(ctx context.Context, family Family) ([]Scope, error)
}

// ListingRepository stores published sibling listings for fast reads
type ListingRepository interface {
	// Upsert creates or replaces the listing of a scope
	Upsert(ctx context.Context, listing *ScopeListing) error

	// GetByKey retrieves the listing of a scope key
	GetByKey(ctx context.Context, key string) (*ScopeListing, error)

	// Delete removes the listing of a scope key
	Delete(ctx context.Context, key string) error

	// ListWithPagination lists the listings of one family
	ListWithPagination(ctx context.Context, family string, params PaginationParams) (*PaginatedListings, error)
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the database connection is healthy
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required tables/namespaces exist
	EnsureCollections(ctx context.Context) error
}
