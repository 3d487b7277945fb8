package utils

import (
	"fmt"
	"time"

	"leadflow/config"
	"leadflow/models"
)

// ScheduleChecker decides whether outbound contact is currently permitted on
// a channel. Implementations return a human-readable reason when it is not.
type ScheduleChecker interface {
	AllowContact(channel models.Channel) (bool, string)
}

// QuietHoursSchedule permits contact only inside a daily window in the
// configured timezone. The clock is injectable for tests.
type QuietHoursSchedule struct {
	StartHour     int
	EndHour       int
	Location      *time.Location
	AllowWeekends bool
	Now           func() time.Time
}

func NewQuietHoursSchedule(cfg config.QuietHoursConfig) (*QuietHoursSchedule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet hours timezone %q: %w", cfg.Timezone, err)
	}
	return &QuietHoursSchedule{
		StartHour:     cfg.StartHour,
		EndHour:       cfg.EndHour,
		Location:      loc,
		AllowWeekends: cfg.AllowWeekends,
		Now:           time.Now,
	}, nil
}

// AllowContact reports whether the current local time falls inside the
// contact window. StartHour == EndHour disables the window check entirely.
func (q *QuietHoursSchedule) AllowContact(channel models.Channel) (bool, string) {
	now := q.Now().In(q.Location)

	if !q.AllowWeekends {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false, "contact not permitted on weekends"
		}
	}

	if q.StartHour == q.EndHour {
		return true, ""
	}

	hour := now.Hour()
	var inWindow bool
	if q.StartHour < q.EndHour {
		inWindow = hour >= q.StartHour && hour < q.EndHour
	} else {
		// Window wraps midnight, e.g. 20-08
		inWindow = hour >= q.StartHour || hour < q.EndHour
	}
	if !inWindow {
		return false, fmt.Sprintf("outside contact window %02d:00-%02d:00 %s",
			q.StartHour, q.EndHour, q.Location.String())
	}
	return true, ""
}
