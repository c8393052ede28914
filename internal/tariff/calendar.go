package tariff

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LearningCalendar answers "is this a school day" for the cash-back
// day-type selection. Implemented externally in production; the file-backed
// implementation below serves single-node deployments and tests.
type LearningCalendar interface {
	IsSchoolDay(day time.Time) (bool, error)
}

// FileCalendar is a LearningCalendar loaded once from a YAML file listing
// holidays. School days are weekdays not listed as holidays.
type FileCalendar struct {
	holidays map[string]struct{}
}

type rawCalendar struct {
	Holidays []string `yaml:"holidays"`
}

const calendarDateLayout = "2006-01-02"

// LoadFileCalendar parses the calendar file. A missing file yields a
// calendar with no holidays.
func LoadFileCalendar(path string) (*FileCalendar, error) {
	cal := &FileCalendar{holidays: make(map[string]struct{})}
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading learning calendar %s: %w", path, err)
	}

	var raw rawCalendar
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing learning calendar %s: %w", path, err)
	}

	for _, d := range raw.Holidays {
		if _, err := time.Parse(calendarDateLayout, d); err != nil {
			return nil, fmt.Errorf("learning calendar %s: bad date %q: %w", path, d, err)
		}
		cal.holidays[d] = struct{}{}
	}
	return cal, nil
}

// IsSchoolDay reports whether day is a weekday and not a listed holiday.
func (c *FileCalendar) IsSchoolDay(day time.Time) (bool, error) {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}
	_, holiday := c.holidays[day.Format(calendarDateLayout)]
	return !holiday, nil
}
