package circulation

import "context"

// ConsistencyLevel tells a store whether a read may be served from a replica.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. Borrow and Return always use it.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows loan listings to be served from a replica, which may lag behind.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key under which the requested ConsistencyLevel is stored.
const ConsistencyLevelKey contextKey = "circulation.consistency_level"

// WithStrongConsistency marks the context so that reads go to the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency marks the context so that loan listings may be read from a replica.
//
// Example usage:
//
//	ctx = circulation.WithEventualConsistency(ctx)
//	loans, err := engine.AllLoans(ctx)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel returns the level requested in ctx, StrongConsistency if none was requested.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
