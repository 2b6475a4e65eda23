package view

import "testing"

func TestFormatDistanceKm(t *testing.T) {
	t.Parallel()
	if got := FormatDistanceKm(24521.3); got != "24.52km" {
		t.Fatalf("unexpected distance: %q", got)
	}
	if got := FormatDistanceKm(0); got != "0.00km" {
		t.Fatalf("unexpected zero distance: %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	if got := FormatDuration(3720); got != "62min 0s" {
		t.Fatalf("unexpected duration: %q", got)
	}
	if got := FormatDuration(311); got != "5min 11s" {
		t.Fatalf("unexpected duration: %q", got)
	}
}

func TestFormatElevation(t *testing.T) {
	t.Parallel()
	if got := FormatElevation(312.5); got != "312.5m" {
		t.Fatalf("unexpected elevation: %q", got)
	}
	if got := FormatElevation(95); got != "95m" {
		t.Fatalf("unexpected elevation: %q", got)
	}
}

func TestFormatPace(t *testing.T) {
	t.Parallel()
	// 3600s over 12km is 5:00/km.
	if got := FormatPace(3600, 12000); got != "5:00/km" {
		t.Fatalf("unexpected pace: %q", got)
	}
	if got := FormatPace(0, 12000); got != "-" {
		t.Fatalf("zero time must format as dash, got %q", got)
	}
	if got := FormatPace(3600, 0); got != "-" {
		t.Fatalf("zero distance must format as dash, got %q", got)
	}
}

func TestFormatSpeed(t *testing.T) {
	t.Parallel()
	// 24521.3m over 3720s is 23.7 km/h.
	if got := FormatSpeed(24521.3, 3720); got != "23.7 km/h" {
		t.Fatalf("unexpected speed: %q", got)
	}
	if got := FormatSpeed(1000, 0); got != "-" {
		t.Fatalf("zero time must format as dash, got %q", got)
	}
}
