package dispatch

import "github.com/assaka/daino-sub010/id"

// ID is the identifier type shared by every entity.
type ID = id.ID

// Prefix identifies the entity kind encoded in an ID.
type Prefix = id.Prefix
