// Package availability holds an organization's bookable windows and decides whether a booking fits.
package availability

import (
	"fmt"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

// Window sources, in order of precedence.
const (
	SourceSlot    = "slot"
	SourceWeekly  = "weekly"
	SourceDefault = "default"
)

// Snapshot is everything Evaluate needs to judge one request.
// Slot is the slot on Date containing the requested time, if any; Booked counts the guests it already holds.
type Snapshot struct {
	Date      models.Date
	Slot      *models.Slot
	Booked    int
	Weekly    *models.DayHours
	OpenTime  models.Clock
	CloseTime models.Clock
}

// Source names the window that governs the snapshot.
func (s Snapshot) Source() string {
	switch {
	case s.Slot != nil:
		return SourceSlot
	case s.Weekly != nil:
		return SourceWeekly
	}
	return SourceDefault
}

// Evaluate admits guests at time at, or explains why not. A slot containing the time decides alone;
// otherwise the weekday's template entry, then the organization's default hours bound the time.
// Windows are half-open: [start, end).
func Evaluate(s Snapshot, at models.Clock, guests int) error {
	if guests < 1 {
		return apperr.Validation("guests must be at least 1", "guests")
	}
	if s.Slot != nil {
		if s.Slot.Blocked {
			return apperr.OutsideHours(fmt.Sprintf("the %s-%s slot on %s is not bookable", s.Slot.StartTime, s.Slot.EndTime, s.Date))
		}
		if s.Booked+guests > s.Slot.MaxGuests {
			return apperr.CapacityExceeded(fmt.Sprintf("only %d of %d seats left in the %s-%s slot",
				remaining(s.Slot.MaxGuests, s.Booked), s.Slot.MaxGuests, s.Slot.StartTime, s.Slot.EndTime))
		}
		return nil
	}
	start, end := s.OpenTime, s.CloseTime
	if s.Weekly != nil {
		start, end = s.Weekly.StartTime, s.Weekly.EndTime
	}
	if at < start || at >= end {
		return apperr.OutsideHours(fmt.Sprintf("%s on %s is outside opening hours %s-%s", at, s.Date, start, end))
	}
	return nil
}

// Decision is the outcome of a capacity preview.
type Decision struct {
	Admit     bool   `json:"admit"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
	Source    string `json:"source"`
	Remaining *int   `json:"remaining,omitempty"`
}

// Decide runs Evaluate and reports the result as a Decision. Validation failures are returned as errors.
func Decide(s Snapshot, at models.Clock, guests int) (Decision, error) {
	d := Decision{Source: s.Source()}
	if s.Slot != nil {
		left := remaining(s.Slot.MaxGuests, s.Booked)
		d.Remaining = &left
	}
	err := Evaluate(s, at, guests)
	if err == nil {
		d.Admit = true
		return d, nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindCapacityExceeded, apperr.KindOutsideHours:
		d.Code = apperr.KindOf(err).String()
		d.Reason = err.Error()
		return d, nil
	}
	return Decision{}, err
}

func remaining(maxGuests, booked int) int {
	if booked >= maxGuests {
		return 0
	}
	return maxGuests - booked
}
