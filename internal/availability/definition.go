package availability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

// DayEntry is one day of the weekly template as exchanged over the API.
type DayEntry struct {
	Day       string       `json:"day"`
	DayOfWeek int          `json:"dayOfWeek"`
	StartTime models.Clock `json:"startTime"`
	EndTime   models.Clock `json:"endTime"`
}

type rawEntry struct {
	DayOfWeek json.RawMessage `json:"dayOfWeek"`
	Day       string          `json:"day"`
	StartTime string          `json:"startTime"`
	EndTime   string          `json:"endTime"`
}

// ParseWeekly decodes a weekly template given either as an array of {dayOfWeek, startTime, endTime}
// or as an object keyed by day name ({"Monday": {"startTime": "09:00", "endTime": "17:00"}}).
// Either form may be wrapped as {"availabilityData": ...}. Days are names (any case) or numbers
// with 0 = Sunday. An empty template is rejected.
func ParseWeekly(body []byte) ([]models.DayHours, error) {
	body = unwrapEnvelope(bytes.TrimSpace(body))
	if len(body) == 0 {
		return nil, apperr.Validation("availability definition is required")
	}
	var entries []rawEntry
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, apperr.Validation("invalid availability definition: " + err.Error())
		}
	case '{':
		var byDay map[string]rawEntry
		if err := json.Unmarshal(body, &byDay); err != nil {
			return nil, apperr.Validation("invalid availability definition: " + err.Error())
		}
		for day, e := range byDay {
			e.Day = day
			e.DayOfWeek = nil
			entries = append(entries, e)
		}
	default:
		return nil, apperr.Validation("availability definition must be an array or an object")
	}
	if len(entries) == 0 {
		return nil, apperr.Validation("availability definition must name at least one day")
	}

	hours := make([]models.DayHours, 0, len(entries))
	for i, e := range entries {
		day, err := parseDay(e)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("entry %d: %v", i, err), "dayOfWeek")
		}
		start, err := models.ParseClock(e.StartTime)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("%s: %v", day, err), "startTime")
		}
		end, err := models.ParseClock(e.EndTime)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("%s: %v", day, err), "endTime")
		}
		hours = append(hours, models.DayHours{DayOfWeek: day, StartTime: start, EndTime: end})
	}
	return hours, nil
}

// unwrapEnvelope returns the value of a lone "availabilityData" key, or body unchanged.
func unwrapEnvelope(body []byte) []byte {
	if len(body) == 0 || body[0] != '{' {
		return body
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil || len(env) != 1 {
		return body
	}
	inner, ok := env["availabilityData"]
	if !ok {
		return body
	}
	return bytes.TrimSpace(inner)
}

// ValidateWeekly checks that every entry has start < end and that no day appears twice.
func ValidateWeekly(hours []models.DayHours) error {
	seen := make(map[time.Weekday]bool, len(hours))
	for _, h := range hours {
		if h.DayOfWeek < time.Sunday || h.DayOfWeek > time.Saturday {
			return apperr.Validation(fmt.Sprintf("invalid day of week %d", h.DayOfWeek), "dayOfWeek")
		}
		if seen[h.DayOfWeek] {
			return apperr.Validation(fmt.Sprintf("%s is defined more than once", h.DayOfWeek), "dayOfWeek")
		}
		seen[h.DayOfWeek] = true
		if h.StartTime >= h.EndTime {
			return apperr.Validation(fmt.Sprintf("%s: startTime must be before endTime", h.DayOfWeek), "startTime", "endTime")
		}
	}
	return nil
}

// DayOrdered returns the template as API entries ordered Monday through Sunday.
func DayOrdered(hours []models.DayHours) []DayEntry {
	byDay := make(map[time.Weekday]models.DayHours, len(hours))
	for _, h := range hours {
		byDay[h.DayOfWeek] = h
	}
	out := make([]DayEntry, 0, len(hours))
	for _, d := range models.WeekOrder {
		h, ok := byDay[d]
		if !ok {
			continue
		}
		out = append(out, DayEntry{Day: d.String(), DayOfWeek: int(d), StartTime: h.StartTime, EndTime: h.EndTime})
	}
	return out
}

func parseDay(e rawEntry) (time.Weekday, error) {
	if len(e.DayOfWeek) > 0 {
		var n int
		if err := json.Unmarshal(e.DayOfWeek, &n); err == nil {
			return weekdayFromNumber(n)
		}
		var s string
		if err := json.Unmarshal(e.DayOfWeek, &s); err != nil {
			return 0, fmt.Errorf("dayOfWeek must be a day name or number")
		}
		return parseDayName(s)
	}
	if e.Day == "" {
		return 0, fmt.Errorf("dayOfWeek is required")
	}
	return parseDayName(e.Day)
}

func parseDayName(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return weekdayFromNumber(n)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

func weekdayFromNumber(n int) (time.Weekday, error) {
	if n < 0 || n > 6 {
		return 0, fmt.Errorf("dayOfWeek %d out of range 0-6", n)
	}
	return time.Weekday(n), nil
}
