package domain

import "context"

// ListingCache defines the caching contract for sibling listings
type ListingCache interface {
	// Get retrieves a listing by scope key
	Get(ctx context.Context, key string) (*ScopeListing, bool)

	// Set stores a listing under its scope key
	Set(ctx context.Context, key string, listing *ScopeListing) error

	// Delete removes a listing by scope key
	Delete(ctx context.Context, key string) error

	// CleanExpired removes all expired listings
	CleanExpired(ctx context.Context) error
}

// KeyLocker serializes in-process work per key
type KeyLocker interface {
	// Lock acquires the lock of key and returns its unlock function
	Lock(key string) func()
}
