package materials

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of material types.
type Category string

const (
	CategoryNotes             Category = "Notes"
	CategoryFlashcards        Category = "Flashcards"
	CategoryPastPapers        Category = "Past Papers"
	CategoryPracticeQuestions Category = "Practice Questions"
	CategoryOther             Category = "Other"
)

// ParseCategory validates a raw category value at the boundary.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryNotes, CategoryFlashcards, CategoryPastPapers, CategoryPracticeQuestions, CategoryOther:
		return Category(raw), nil
	case "":
		return CategoryOther, nil
	}
	return "", fmt.Errorf("materials: unknown category %q", raw)
}

// Material is a study resource attached to one study year. FileURL
// points at externally hosted content; the portal stores metadata only.
type Material struct {
	ID          uuid.UUID
	YearID      uuid.UUID
	Title       string
	Category    Category
	FileURL     string
	Description string
	UploadedBy  uuid.UUID
	UploadedAt  time.Time
}
