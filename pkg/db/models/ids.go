package models

import "github.com/google/uuid"

// ensureID assigns a random id when the caller left it empty. Postgres also
// defaults ids server-side; sqlite does not.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
