package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// 2026-10-12 is a Monday.
var monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func writeSchedule(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing schedule: %v", err)
	}
	return path
}

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	anyone := uuid.New()

	mon := s.WorkingDay(anyone, monday)
	if mon.Closed || mon.StartMinute != 540 || mon.EndMinute != 1080 || mon.GranularityMinutes != 30 {
		t.Errorf("monday = %+v, want 09:00-18:00 every 30 minutes", mon)
	}

	sat := s.WorkingDay(anyone, monday.AddDate(0, 0, 5))
	if sat.Closed || sat.EndMinute != 960 {
		t.Errorf("saturday = %+v, want open until 16:00", sat)
	}

	sun := s.WorkingDay(anyone, monday.AddDate(0, 0, 6))
	if !sun.Closed {
		t.Errorf("sunday = %+v, want closed", sun)
	}

	if s.Location().String() != "Asia/Kolkata" {
		t.Errorf("location = %s", s.Location())
	}
	if s.MaxAdvanceDays() != 30 {
		t.Errorf("max advance days = %d", s.MaxAdvanceDays())
	}
}

func TestLoadSchedule_FileOverridesDefaults(t *testing.T) {
	doctor := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	path := writeSchedule(t, `
timezone: UTC
granularity_minutes: 60
hours:
  monday:
    start: "08:00"
    end: "12:00"
  sunday:
    start: "10:00"
    end: "13:00"
    open: true
practitioners:
  0f8fad5b-d9cb-469f-a165-70867728950e:
    granularity_minutes: 45
    hours:
      tuesday:
        open: false
      wednesday:
        start: "14:00"
        end: "20:00"
`)

	s, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clinicMon := s.WorkingDay(uuid.New(), monday)
	if clinicMon.StartMinute != 480 || clinicMon.EndMinute != 720 || clinicMon.GranularityMinutes != 60 {
		t.Errorf("clinic monday = %+v", clinicMon)
	}
	if s.WorkingDay(uuid.New(), monday.AddDate(0, 0, 6)).Closed {
		t.Error("sunday was opened by the file")
	}

	docMon := s.WorkingDay(doctor, monday)
	if docMon.StartMinute != 480 || docMon.GranularityMinutes != 45 {
		t.Errorf("doctor monday = %+v, want clinic hours at 45 minutes", docMon)
	}
	if !s.WorkingDay(doctor, monday.AddDate(0, 0, 1)).Closed {
		t.Error("doctor tuesday should be closed")
	}
	docWed := s.WorkingDay(doctor, monday.AddDate(0, 0, 2))
	if docWed.Closed || docWed.StartMinute != 840 || docWed.EndMinute != 1200 {
		t.Errorf("doctor wednesday = %+v, want 14:00-20:00", docWed)
	}
	if s.Location() != time.UTC {
		t.Errorf("location = %s", s.Location())
	}
}

func TestLoadSchedule_EnvOverride(t *testing.T) {
	t.Setenv("SCHEDULE_GRANULARITY_MINUTES", "15")
	s, err := LoadSchedule("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g := s.WorkingDay(uuid.New(), monday).GranularityMinutes; g != 15 {
		t.Errorf("granularity = %d, want 15", g)
	}
}

func TestLoadSchedule_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad clock": `
hours:
  monday:
    start: "9am"
    end: "18:00"
`,
		"end before start": `
hours:
  monday:
    start: "18:00"
    end: "09:00"
`,
		"unknown weekday": `
hours:
  funday:
    start: "09:00"
    end: "10:00"
`,
		"bad practitioner id": `
practitioners:
  dr-who:
    granularity_minutes: 30
`,
		"bad timezone": `
timezone: Mars/Olympus
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadSchedule(writeSchedule(t, body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadSchedule_MissingFile(t *testing.T) {
	_, err := LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading schedule file") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestSchedule_Today(t *testing.T) {
	s := DefaultSchedule()
	// 20:00 UTC is already the next day in India.
	now := time.Date(2026, 10, 12, 20, 0, 0, 0, time.UTC)
	if got := s.Today(now); !got.Equal(time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Today = %v", got)
	}
}
