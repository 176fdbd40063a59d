package draftgate

import "github.com/draftgate/draftgate/id"

// ID is the primary identifier type for all draftgate entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
