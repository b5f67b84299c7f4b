package tracker

import "context"

// Store persists tracker state as a single logical document.
type Store interface {
	// Save replaces the persisted state with the given snapshot.
	Save(ctx context.Context, state *State) error
	// Load returns the persisted state, or (nil, nil) when none exists yet.
	// A non-nil error means the state was unreadable; callers treat that as
	// empty state rather than failing.
	Load(ctx context.Context) (*State, error)
	Close() error
}
