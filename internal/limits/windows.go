package limits

import (
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/shopspring/decimal"
)

// Window is a calendar-aligned period over which outgoing transfers are summed.
// All windows are computed in UTC: a day starts at 00:00, a week on ISO Monday,
// a month on the 1st.
type Window string

const (
	Daily   Window = "daily"
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
)

// Windows lists every window in check order.
var Windows = []Window{Daily, Weekly, Monthly}

// Start returns the instant the window containing now began.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Cap returns the configured limit for w, or nil when unlimited.
func (w Window) Cap(l models.Limits) *decimal.Decimal {
	switch w {
	case Daily:
		return l.Daily
	case Weekly:
		return l.Weekly
	case Monthly:
		return l.Monthly
	}
	return nil
}

// Validate rejects zero or negative caps. Nil caps are allowed.
func Validate(l models.Limits) error {
	for _, w := range Windows {
		if c := w.Cap(l); c != nil && !c.IsPositive() {
			return models.ErrInvalidLimit
		}
	}
	return nil
}
