package rules

import "github.com/google/uuid"

// IDGenerator produces template identifiers.
type IDGenerator func() string

// UUIDv7 returns a generator of time-sortable RFC 9562 identifiers.
func UUIDv7() IDGenerator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every identifier produced by gen.
func Prefixed(prefix string, gen IDGenerator) IDGenerator {
	return func() string {
		return prefix + gen()
	}
}

// NewCustomID is the generator used for user-added templates.
var NewCustomID IDGenerator = Prefixed("custom-", UUIDv7())
