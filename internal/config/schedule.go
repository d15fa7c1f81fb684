package config

import (
	"fmt"
	"strings"
	"time"
)

// Schedule 每周固定时刻，如 "Mon 09:00"。
type Schedule struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func ParseSchedule(s string) (Schedule, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return Schedule{}, fmt.Errorf("want \"<Weekday> HH:MM\", got %q", s)
	}
	key := strings.ToLower(parts[0])
	if len(key) > 3 {
		key = key[:3]
	}
	wd, ok := weekdays[key]
	if !ok {
		return Schedule{}, fmt.Errorf("unknown weekday %q", parts[0])
	}
	t, err := time.Parse("15:04", parts[1])
	if err != nil {
		return Schedule{}, fmt.Errorf("bad time %q: %w", parts[1], err)
	}
	return Schedule{Weekday: wd, Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (s Schedule) String() string {
	return fmt.Sprintf("%s %02d:%02d", s.Weekday.String()[:3], s.Hour, s.Minute)
}

// Last 返回不晚于 now 的最近一次触发时刻（loc 时区）。
func (s Schedule) Last(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	daysBack := (int(local.Weekday()) - int(s.Weekday) + 7) % 7
	day := local.AddDate(0, 0, -daysBack)
	at := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, loc)
	if at.After(local) {
		at = at.AddDate(0, 0, -7)
	}
	return at
}

// Within 判断 now 是否落在 [最近一次触发, 最近一次触发+window) 内。
func (s Schedule) Within(now time.Time, loc *time.Location, window time.Duration) bool {
	return now.Sub(s.Last(now, loc)) < window
}
