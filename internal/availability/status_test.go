package availability

import "testing"

func TestIsOccupying(t *testing.T) {
	want := map[Status]bool{
		StatusScheduled:   true,
		StatusConfirmed:   true,
		StatusInProgress:  true,
		StatusRescheduled: true,
		StatusCompleted:   false,
		StatusCancelled:   false,
		StatusNoShow:      false,
		Status("unknown"): false,
	}
	for status, occupying := range want {
		if got := IsOccupying(status); got != occupying {
			t.Errorf("IsOccupying(%q) = %v, want %v", status, got, occupying)
		}
	}
}

func TestPartition_TotalAndOrderPreserving(t *testing.T) {
	statuses := []Status{
		StatusCancelled, StatusScheduled, StatusCompleted, StatusConfirmed,
		StatusNoShow, StatusRescheduled, StatusInProgress, StatusCancelled,
	}
	var bookings []BookingWindow
	for i, s := range statuses {
		bookings = append(bookings, booking(i*60, i*60+30, s))
	}

	p := Partition(bookings)
	if len(p.Occupying)+len(p.Terminal) != len(bookings) {
		t.Fatalf("partition lost bookings: %d + %d != %d", len(p.Occupying), len(p.Terminal), len(bookings))
	}

	assertSubsequence(t, "occupying", p.Occupying, bookings)
	assertSubsequence(t, "terminal", p.Terminal, bookings)

	for _, b := range p.Occupying {
		if !IsOccupying(b.Status) {
			t.Errorf("terminal booking %q in occupying group", b.Status)
		}
	}
	for _, b := range p.Terminal {
		if IsOccupying(b.Status) {
			t.Errorf("occupying booking %q in terminal group", b.Status)
		}
	}
}

func TestPartition_Empty(t *testing.T) {
	p := Partition(nil)
	if len(p.Occupying) != 0 || len(p.Terminal) != 0 {
		t.Errorf("expected empty partition, got %+v", p)
	}
}

func TestOccupying(t *testing.T) {
	bookings := []BookingWindow{booking(0, 30, StatusCompleted), booking(30, 60, StatusConfirmed)}
	got := Occupying(bookings)
	if len(got) != 1 || got[0].Status != StatusConfirmed {
		t.Errorf("Occupying = %+v", got)
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range append(append([]Status{}, OccupyingStatuses...), TerminalStatuses...) {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("in_progress").IsValid() {
		t.Error("underscore spelling should not be accepted")
	}
}

func assertSubsequence(t *testing.T, name string, group, all []BookingWindow) {
	t.Helper()
	i := 0
	for _, b := range all {
		if i < len(group) && group[i].BookingID == b.BookingID {
			i++
		}
	}
	if i != len(group) {
		t.Errorf("%s group is not an order-preserving subsequence of the input", name)
	}
}
