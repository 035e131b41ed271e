package circulation

import (
	"time"
)

// Instead of implementing full value objects, I'm using uuid.UUID for identities and a time helper here ...

// ToTimestamp converts a time to UTC with microsecond precision, which is what Postgres stores.
func ToTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
