package services

import (
	"time"

	"github.com/yigit/unisphere-enrollment/internal/app/models"
)

// Interval is a half-open [Start, End) booking span. A nil End is open-ended.
type Interval struct {
	ID    int64
	Start time.Time
	End   *time.Time
}

// ConflictDetector finds overlapping intervals in a student's schedule.
type ConflictDetector struct{}

// HasOverlap reports whether candidate overlaps any of existing.
func (d ConflictDetector) HasOverlap(candidate Interval, existing []Interval) bool {
	_, found := d.FindOverlap(candidate, existing)
	return found
}

// FindOverlap returns the first interval of existing that overlaps candidate. The entry with
// the candidate's own ID is skipped. A pair where either side has no end time is never
// considered overlapping.
func (ConflictDetector) FindOverlap(candidate Interval, existing []Interval) (Interval, bool) {
	if candidate.End == nil {
		return Interval{}, false
	}
	for _, other := range existing {
		if other.ID == candidate.ID || other.End == nil {
			continue
		}
		if candidate.Start.Before(*other.End) && other.Start.Before(*candidate.End) {
			return other, true
		}
	}
	return Interval{}, false
}

// scheduleIntervals converts a schedule into intervals keyed by session id. Cancelled
// sessions no longer occupy time and are left out.
func scheduleIntervals(schedule []models.ScheduledSession) []Interval {
	intervals := make([]Interval, 0, len(schedule))
	for _, s := range schedule {
		if s.Status == models.SessionCancelled {
			continue
		}
		intervals = append(intervals, Interval{ID: s.SessionID, Start: s.StartTime, End: s.EndTime})
	}
	return intervals
}

func sessionInterval(s *models.Session) Interval {
	return Interval{ID: s.ID, Start: s.StartTime, End: s.EndTime}
}
