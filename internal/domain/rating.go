package domain

import (
	"math"
	"time"
)

const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// Rating represents a single user's rating for a note.
type Rating struct {
	NoteID    string
	UserID    string
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a note's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}

// ValidRatingValue reports whether v is an accepted star value.
func ValidRatingValue(v int) bool {
	return v >= MinRatingValue && v <= MaxRatingValue
}

// ComputeAggregate returns the mean of values rounded to one decimal place.
// An empty slice yields the zero aggregate.
func ComputeAggregate(values []int) RatingAggregate {
	if len(values) == 0 {
		return RatingAggregate{}
	}
	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	mean := float64(sum) / float64(len(values))
	return RatingAggregate{
		Average: RoundToOneDecimal(mean),
		Count:   int64(len(values)),
	}
}

// RoundToOneDecimal rounds half away from zero at the first decimal.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}
