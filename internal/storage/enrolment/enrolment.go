// Package enrolment is the sample tenant-scoped business table behind
// /api/students. Both stores take the tenant from the scope token on the
// context and never from their arguments.
package enrolment

import (
	"time"

	"github.com/google/uuid"
)

type Enrolment struct {
	ID         uuid.UUID `json:"id"`
	StudentRef string    `json:"student_ref"`
	Grade      string    `json:"grade"`
	CreatedAt  time.Time `json:"created_at"`
}
