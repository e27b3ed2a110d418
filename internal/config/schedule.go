package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/prempal04/AyurSutra/internal/availability"
	"github.com/prempal04/AyurSutra/pkg/clock"
)

// DayHours is one weekday entry of the schedule file.
type DayHours struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
	// Open defaults to true for practitioner overrides that omit it.
	Open *bool `mapstructure:"open"`
}

type PractitionerHours struct {
	GranularityMinutes int                 `mapstructure:"granularity_minutes"`
	Hours              map[string]DayHours `mapstructure:"hours"`
}

type scheduleFile struct {
	Timezone           string                       `mapstructure:"timezone"`
	GranularityMinutes int                          `mapstructure:"granularity_minutes"`
	MaxAdvanceDays     int                          `mapstructure:"max_advance_days"`
	Hours              map[string]DayHours          `mapstructure:"hours"`
	Practitioners      map[string]PractitionerHours `mapstructure:"practitioners"`
}

// Schedule resolves the working day of a practitioner on a date. The zero
// value is not usable; build one with LoadSchedule or DefaultSchedule.
type Schedule struct {
	loc            *time.Location
	maxAdvanceDays int
	clinic         [7]availability.WorkingDay
	practitioners  map[uuid.UUID][7]availability.WorkingDay
}

// clinic defaults, taken from the practice settings
var defaultHours = map[time.Weekday]struct {
	start, end string
	open       bool
}{
	time.Monday:    {"09:00", "18:00", true},
	time.Tuesday:   {"09:00", "18:00", true},
	time.Wednesday: {"09:00", "18:00", true},
	time.Thursday:  {"09:00", "18:00", true},
	time.Friday:    {"09:00", "18:00", true},
	time.Saturday:  {"09:00", "16:00", true},
	time.Sunday:    {"10:00", "14:00", false},
}

func newScheduleViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCHEDULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timezone", "Asia/Kolkata")
	v.SetDefault("granularity_minutes", 30)
	v.SetDefault("max_advance_days", 30)
	for day, h := range defaultHours {
		key := "hours." + weekdayKey(day)
		v.SetDefault(key+".start", h.start)
		v.SetDefault(key+".end", h.end)
		v.SetDefault(key+".open", h.open)
	}
	return v
}

// DefaultSchedule is the clinic schedule used when no file is configured.
func DefaultSchedule() *Schedule {
	s, err := LoadSchedule("")
	if err != nil {
		panic(fmt.Sprintf("default schedule is invalid: %v", err))
	}
	return s
}

// LoadSchedule reads the YAML schedule at path over the built-in defaults. An
// empty path returns the defaults. SCHEDULE_* environment variables override
// top-level keys, e.g. SCHEDULE_GRANULARITY_MINUTES=15.
func LoadSchedule(path string) (*Schedule, error) {
	v := newScheduleViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading schedule file %s: %w", path, err)
		}
	}

	var raw scheduleFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decoding schedule: %w", err)
	}
	return compileSchedule(raw)
}

func compileSchedule(raw scheduleFile) (*Schedule, error) {
	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone %q: %w", raw.Timezone, err)
	}
	if raw.MaxAdvanceDays <= 0 {
		return nil, fmt.Errorf("schedule max_advance_days must be positive, got %d", raw.MaxAdvanceDays)
	}

	s := &Schedule{
		loc:            loc,
		maxAdvanceDays: raw.MaxAdvanceDays,
		practitioners:  make(map[uuid.UUID][7]availability.WorkingDay, len(raw.Practitioners)),
	}

	clinicHours, err := byWeekday(raw.Hours)
	if err != nil {
		return nil, err
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		h, ok := clinicHours[wd]
		if !ok {
			s.clinic[wd] = availability.ClosedDay()
			continue
		}
		day, err := h.workingDay(raw.GranularityMinutes, false)
		if err != nil {
			return nil, fmt.Errorf("clinic hours for %s: %w", weekdayKey(wd), err)
		}
		s.clinic[wd] = day
	}

	for rawID, ph := range raw.Practitioners {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("practitioner key %q is not a UUID: %w", rawID, err)
		}
		granularity := ph.GranularityMinutes
		if granularity == 0 {
			granularity = raw.GranularityMinutes
		}
		overrides, err := byWeekday(ph.Hours)
		if err != nil {
			return nil, fmt.Errorf("practitioner %s: %w", id, err)
		}

		var days [7]availability.WorkingDay
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if h, ok := overrides[wd]; ok {
				day, err := h.workingDay(granularity, true)
				if err != nil {
					return nil, fmt.Errorf("practitioner %s on %s: %w", id, weekdayKey(wd), err)
				}
				days[wd] = day
				continue
			}
			day := s.clinic[wd]
			if !day.Closed {
				day.GranularityMinutes = granularity
				if err := day.Validate(); err != nil {
					return nil, fmt.Errorf("practitioner %s on %s: %w", id, weekdayKey(wd), err)
				}
			}
			days[wd] = day
		}
		s.practitioners[id] = days
	}

	return s, nil
}

func (h DayHours) workingDay(granularity int, openByDefault bool) (availability.WorkingDay, error) {
	open := openByDefault
	if h.Open != nil {
		open = *h.Open
	}
	if !open {
		return availability.ClosedDay(), nil
	}
	start, err := clock.Parse(h.Start)
	if err != nil {
		return availability.WorkingDay{}, err
	}
	end, err := clock.Parse(h.End)
	if err != nil {
		return availability.WorkingDay{}, err
	}
	return availability.NewWorkingDay(start, end, granularity)
}

func byWeekday(hours map[string]DayHours) (map[time.Weekday]DayHours, error) {
	out := make(map[time.Weekday]DayHours, len(hours))
	for key, h := range hours {
		wd, ok := parseWeekday(key)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", key)
		}
		out[wd] = h
	}
	return out, nil
}

func weekdayKey(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

func parseWeekday(s string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(s, wd.String()) {
			return wd, true
		}
	}
	return 0, false
}

// WorkingDay returns the bookable hours of practitionerID on date's weekday.
func (s *Schedule) WorkingDay(practitionerID uuid.UUID, date time.Time) availability.WorkingDay {
	wd := date.Weekday()
	if days, ok := s.practitioners[practitionerID]; ok {
		return days[wd]
	}
	return s.clinic[wd]
}

// Location is the clinic's timezone; slot minutes are wall-clock minutes there.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

func (s *Schedule) MaxAdvanceDays() int {
	return s.maxAdvanceDays
}

// Today returns the current calendar day in the clinic timezone.
func (s *Schedule) Today(now time.Time) time.Time {
	return availability.Day(now.In(s.loc))
}
