package universities

import (
	"time"

	"github.com/google/uuid"
)

// University is a top level content container. Deleting one removes its
// whole course/year/material subtree.
type University struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
