package courses

import (
	"time"

	"github.com/google/uuid"
)

// DefaultYearCount is how many study years a fresh course is seeded with.
const DefaultYearCount = 4

// Course belongs to one university and owns a set of study years.
type Course struct {
	ID           uuid.UUID
	UniversityID uuid.UUID
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Year is one study year within a course. YearNumber is unique per
// course.
type Year struct {
	ID         uuid.UUID
	CourseID   uuid.UUID
	YearNumber int
	CreatedAt  time.Time
}
