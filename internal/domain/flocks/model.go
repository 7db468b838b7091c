package flocks

import (
	"errors"
	"time"
)

// MortalityReason matches the stored discriminant of the original records.
type MortalityReason string

const (
	ReasonNatural  MortalityReason = "NATURAL"
	ReasonAccident MortalityReason = "ACCIDENT"
	ReasonCull     MortalityReason = "CULL"
	ReasonPredator MortalityReason = "PREDATOR"
)

type Shed struct {
	ID          int64
	Name        string
	MaxCapacity int
}

// Flock is a cohort of birds housed together ("lote"). CurrentCount is
// derived: initial count minus cumulative mortality; only RecordMortality
// moves it.
type Flock struct {
	ID                  int64
	ShedID              int64
	Breed               string
	StartDate           time.Time
	InitialCount        int
	CurrentCount        int
	Active              bool
	NextVaccinationDate *time.Time
}

type MortalityRecord struct {
	ID        int64
	FlockID   int64
	CreatedAt time.Time
	Quantity  int
	Reason    MortalityReason
}

type Vaccination struct {
	ID            int64
	FlockID       int64
	Vaccine       string
	AppliedOn     time.Time
	SuggestedNext *time.Time
	Notes         string
}

var (
	ErrUnknownFlock    = errors.New("flocks: unknown flock")
	ErrInvalidQuantity = errors.New("flocks: quantity must be positive")
)
