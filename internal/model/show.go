package model

import "time"

// ShowStatus is the lifecycle state of a screening as published by the
// catalog.
type ShowStatus string

const (
	ShowScheduled ShowStatus = "SCHEDULED"
	ShowCancelled ShowStatus = "CANCELLED"
	ShowFinished  ShowStatus = "FINISHED"
)

// Show represents a scheduled screening of a movie on a screen.  Shows
// are reference data owned by the catalog; the booking core only reads
// them.
//
// Fields:
//
//	ID       – show identifier.
//	ScreenID – screen (hall) whose seat map the show uses.
//	Title    – movie title or an external reference.
//	StartsAt – when the show begins.
//	Status   – SCHEDULED, CANCELLED or FINISHED.
type Show struct {
	ID       string     // shows.id
	ScreenID string     // shows.hall_id
	Title    string     // shows.title
	StartsAt time.Time  // shows.starts_at
	Status   ShowStatus // shows.status
}

// Bookable reports whether new holds may be taken for the show at now.
func (s Show) Bookable(now time.Time) bool {
	return s.Status == ShowScheduled && now.Before(s.StartsAt)
}
