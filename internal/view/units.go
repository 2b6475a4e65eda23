package view

import "fmt"

const metersPerKm = 1000.0

// FormatDistanceKm formats a distance in meters as kilometers with two decimals.
func FormatDistanceKm(meters float64) string {
	return fmt.Sprintf("%.2fkm", meters/metersPerKm)
}

// FormatDuration formats a duration in seconds as whole minutes and seconds.
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%dmin %ds", seconds/60, seconds%60)
}

// FormatElevation formats an elevation in meters.
func FormatElevation(meters float64) string {
	return fmt.Sprintf("%gm", meters)
}

// FormatGrade formats an average grade percentage.
func FormatGrade(percent float64) string {
	return fmt.Sprintf("%.1f%%", percent)
}

// FormatPace formats seconds over meters as minutes per kilometer.
func FormatPace(seconds int, meters float64) string {
	if meters <= 0 || seconds <= 0 {
		return "-"
	}
	paceSeconds := float64(seconds) / (meters / metersPerKm)
	return fmt.Sprintf("%d:%02d/km", int(paceSeconds)/60, int(paceSeconds)%60)
}

// FormatSpeed formats meters over seconds as kilometers per hour.
func FormatSpeed(meters float64, seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f km/h", meters/float64(seconds)*3.6)
}
