package models

import (
	"time"

	"github.com/google/uuid"
)

// WeekOrder is the display order of the weekly template.
var WeekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// DayHours is one day of an organization's recurring weekly template.
type DayHours struct {
	DayOfWeek time.Weekday `json:"-"`
	StartTime Clock        `json:"startTime"`
	EndTime   Clock        `json:"endTime"`
}

// Contains reports whether c falls in [StartTime, EndTime).
func (d DayHours) Contains(c Clock) bool {
	return c >= d.StartTime && c < d.EndTime
}

// Slot is a dated, capacity-bounded bookable window.
type Slot struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Date           Date      `json:"date"`
	StartTime      Clock     `json:"startTime"`
	EndTime        Clock     `json:"endTime"`
	MaxGuests      int       `json:"maxGuests"`
	Blocked        bool      `json:"blocked"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Contains reports whether c falls in [StartTime, EndTime).
func (s Slot) Contains(c Clock) bool {
	return c >= s.StartTime && c < s.EndTime
}

// Overlaps reports whether two slots on the same date share any minute.
func (s Slot) Overlaps(o Slot) bool {
	return s.Date.Equal(o.Date.Time) && s.StartTime < o.EndTime && o.StartTime < s.EndTime
}
