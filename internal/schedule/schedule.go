// Package schedule loads the weekly timetable and turns it into sessions.
package schedule

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Timetable maps period numbers to start times and weekdays to the class
// holding each period.
type Timetable struct {
	Periods map[int]string            `yaml:"periods"`
	Week    map[string]map[int]string `yaml:"week"`
}

// Slot is one scheduled class meeting on a given day.
type Slot struct {
	Period  int
	ClassID string
	Start   time.Time
}

// Load reads a YAML timetable from path.
func Load(path string) (*Timetable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timetable: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML timetable.
func Parse(b []byte) (*Timetable, error) {
	var tt Timetable
	if err := yaml.Unmarshal(b, &tt); err != nil {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}
	if err := tt.validate(); err != nil {
		return nil, err
	}
	return &tt, nil
}

func (tt *Timetable) validate() error {
	for p, hm := range tt.Periods {
		if _, _, err := clock(hm); err != nil {
			return fmt.Errorf("period %d: %w", p, err)
		}
	}
	for day, periods := range tt.Week {
		if _, ok := weekday(day); !ok {
			return fmt.Errorf("unknown weekday %q", day)
		}
		for p, class := range periods {
			if _, ok := tt.Periods[p]; !ok {
				return fmt.Errorf("%s: period %d has no start time", day, p)
			}
			if strings.TrimSpace(class) == "" {
				return fmt.Errorf("%s: period %d has no class", day, p)
			}
		}
	}
	return nil
}

// SlotsOn returns the meetings for the weekday of day, ordered by period.
// Start times are in day's location.
func (tt *Timetable) SlotsOn(day time.Time) []Slot {
	var out []Slot
	for name, periods := range tt.Week {
		wd, _ := weekday(name)
		if wd != day.Weekday() {
			continue
		}
		for p, class := range periods {
			h, m, _ := clock(tt.Periods[p])
			start := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
			out = append(out, Slot{Period: p, ClassID: strings.TrimSpace(class), Start: start})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

func clock(hm string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hm))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q", hm)
	}
	return t.Hour(), t.Minute(), nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weekday(name string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

