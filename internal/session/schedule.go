package session

import (
	"fmt"
	"time"

	"github.com/tradeworks/nightfade/internal/config"
)

// sessionDateLayout formats trading dates throughout the state files.
const sessionDateLayout = "2006-01-02"

// Trigger windows attributed to each entry. After-hours liquidity is
// front-loaded: the first two hours after the bell carry most of the
// volume, the stretch to the cutoff trades thin and wide.
const (
	WindowPost4PM     = "post_4pm"
	WindowLateEvening = "late_evening"
)

// Schedule resolves the configured wall-clock timetable in the exchange
// timezone. Every method is pure time math: the instant under question
// arrives as an argument, never from a clock read, so the whole
// timetable is testable without faking time.
type Schedule struct {
	loc *time.Location
	cfg config.ScheduleConfig
}

// NewSchedule builds a schedule for the configured timezone.
func NewSchedule(cfg config.ScheduleConfig) (*Schedule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: timezone %q: %w", cfg.Timezone, err)
	}
	return &Schedule{loc: loc, cfg: cfg}, nil
}

// Location returns the exchange timezone.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

// at returns the instant of hh:mm on t's calendar day in exchange time.
func (s *Schedule) at(t time.Time, hour, minute int) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), hour, minute, 0, 0, s.loc)
}

// DateOf formats t's calendar date in exchange time.
func (s *Schedule) DateOf(t time.Time) string {
	return t.In(s.loc).Format(sessionDateLayout)
}

// AnchorAt is the instant anchors are sampled on day's date: the bell
// plus a short settle delay so the official close has printed.
func (s *Schedule) AnchorAt(day time.Time) time.Time {
	bell := s.at(day, s.cfg.AnchorHour, s.cfg.AnchorMinute)
	return bell.Add(time.Duration(s.cfg.AnchorSettleSec) * time.Second)
}

// MonitorStartAt is the instant monitoring begins on day's date.
func (s *Schedule) MonitorStartAt(day time.Time) time.Time {
	return s.at(day, s.cfg.MonitorStartHour, s.cfg.MonitorStartMinute)
}

// EntryCutoffAt is the instant entries stop on day's date.
func (s *Schedule) EntryCutoffAt(day time.Time) time.Time {
	return s.at(day, s.cfg.EntryCutoffHour, s.cfg.EntryCutoffMinute)
}

// PastEntryCutoff reports whether now is at or past the entry cutoff.
func (s *Schedule) PastEntryCutoff(now time.Time) bool {
	return !now.In(s.loc).Before(s.EntryCutoffAt(now))
}

// TriggerWindow labels the after-hours liquidity window now falls in.
func (s *Schedule) TriggerWindow(now time.Time) string {
	if now.In(s.loc).Hour() < s.cfg.LateWindowHour {
		return WindowPost4PM
	}
	return WindowLateEvening
}

// ExitStartAt is the instant the morning close-out begins on day's date.
func (s *Schedule) ExitStartAt(day time.Time) time.Time {
	return s.at(day, s.cfg.ExitHour, s.cfg.ExitMinute)
}

// ExitEndAt is the close-out deadline on day's date.
func (s *Schedule) ExitEndAt(day time.Time) time.Time {
	return s.ExitStartAt(day).Add(time.Duration(s.cfg.ExitWindowMinutes) * time.Minute)
}

// InExitWindow reports whether now sits inside the morning close-out
// window on a weekday.
func (s *Schedule) InExitWindow(now time.Time) bool {
	lt := now.In(s.loc)
	if !s.IsWeekday(lt) {
		return false
	}
	return !lt.Before(s.ExitStartAt(lt)) && lt.Before(s.ExitEndAt(lt))
}

// AtOrPastExit reports whether a weekday morning has reached the exit
// time. Unlike InExitWindow it stays true after the window closes, so a
// late resume still forces the close-out rather than skipping it.
func (s *Schedule) AtOrPastExit(now time.Time) bool {
	lt := now.In(s.loc)
	return s.IsWeekday(lt) && !lt.Before(s.ExitStartAt(lt))
}

// IsWeekday reports whether now falls Mon-Fri in exchange time.
func (s *Schedule) IsWeekday(now time.Time) bool {
	wd := now.In(s.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsFriday reports whether now is a Friday in exchange time.
func (s *Schedule) IsFriday(now time.Time) bool {
	return now.In(s.loc).Weekday() == time.Friday
}

// NextWeekdayAt returns the next weekday instant at hh:mm strictly
// after now. A Friday-evening call lands on Monday.
func (s *Schedule) NextWeekdayAt(now time.Time, hour, minute int) time.Time {
	target := s.at(now, hour, minute)
	lt := now.In(s.loc)
	for !target.After(lt) || !s.IsWeekday(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// SessionDateFor maps a wall-clock instant to the trading date its
// session belongs to. Mornings through the exit deadline, and weekends,
// belong to the prior weekday's overnight session; afternoons start a
// new one.
func (s *Schedule) SessionDateFor(now time.Time) string {
	lt := now.In(s.loc)
	if s.IsWeekday(lt) && !lt.Before(s.ExitEndAt(lt)) {
		return lt.Format(sessionDateLayout)
	}
	for {
		lt = lt.AddDate(0, 0, -1)
		if s.IsWeekday(lt) {
			return lt.Format(sessionDateLayout)
		}
	}
}

// PrevTradingDate returns the weekday before date.
func (s *Schedule) PrevTradingDate(date string) (string, error) {
	day, err := time.ParseInLocation(sessionDateLayout, date, s.loc)
	if err != nil {
		return "", fmt.Errorf("schedule: parse date %q: %w", date, err)
	}
	for {
		day = day.AddDate(0, 0, -1)
		if s.IsWeekday(day) {
			return day.Format(sessionDateLayout), nil
		}
	}
}

// ExitFor returns the morning close-out instant for a session that
// anchored on sessionDate: the exit time on the next trading day, so a
// Friday session exits Monday.
func (s *Schedule) ExitFor(sessionDate string) (time.Time, error) {
	day, err := time.ParseInLocation(sessionDateLayout, sessionDate, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse session date %q: %w", sessionDate, err)
	}
	for {
		day = day.AddDate(0, 0, 1)
		if s.IsWeekday(day) {
			return s.ExitStartAt(day), nil
		}
	}
}
