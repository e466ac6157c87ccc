package logic

import (
	"fmt"
	"time"
)

// Alarm fires once per calendar day at or after Hour:Minute.
// It is polled, so a skipped poll only delays the alarm rather than losing it.
type Alarm struct {
	Hour   int
	Minute int

	firedToday bool
	day        civilDate
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

// NewAlarm returns an alarm for hour:minute.
func NewAlarm(hour, minute int) (*Alarm, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid alarm time %02d:%02d", hour, minute)
	}
	return &Alarm{Hour: hour, Minute: minute}, nil
}

// CheckAndFire returns true exactly once per day, on the first poll at or after
// the configured time. The first poll on a new calendar day clears the fired flag.
func (a *Alarm) CheckAndFire(now time.Time) bool {
	today := dateOf(now)
	if today != a.day {
		a.day = today
		a.firedToday = false
	}
	if a.firedToday {
		return false
	}
	if now.Hour()*60+now.Minute() < a.Hour*60+a.Minute {
		return false
	}
	a.firedToday = true
	return true
}

// FiredToday reports whether the alarm has fired on the day of the last poll.
func (a *Alarm) FiredToday() bool {
	return a.firedToday
}

func (a *Alarm) String() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}
