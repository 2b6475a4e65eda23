package view

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"veloviz/internal/strava"
)

// RenderActivity writes the activity summary and its segment effort table. Rows
// appear in the order the provider returned them, which is the order the efforts
// occurred within the activity.
func RenderActivity(writer io.Writer, activity *strava.Activity) {
	fmt.Fprintf(writer, "%s\n\n", activity.Name)
	fmt.Fprintf(writer, "Distance:       %s\n", FormatDistanceKm(activity.Distance))
	fmt.Fprintf(writer, "Time:           %s\n", FormatDuration(activity.MovingTime))
	fmt.Fprintf(writer, "Elapsed:        %s\n", FormatDuration(activity.ElapsedTime))
	fmt.Fprintf(writer, "Elevation Gain: %s\n", FormatElevation(activity.TotalElevationGain))
	fmt.Fprintf(writer, "Avg Speed:      %s\n", FormatSpeed(activity.Distance, activity.MovingTime))

	if len(activity.SegmentEfforts) == 0 {
		fmt.Fprintln(writer, "\nNo segment efforts on this activity.")
		return
	}

	fmt.Fprintln(writer)
	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"#", "Segment", "Distance", "Grade", "Elev Gain", "Elapsed", "Moving", "PR"})
	table.SetColMinWidth(1, 30)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)

	for index, effort := range activity.SegmentEfforts {
		table.Append([]string{
			strconv.Itoa(index + 1),
			effort.Segment.Name,
			FormatDistanceKm(effort.Segment.Distance),
			FormatGrade(effort.Segment.AverageGrade),
			FormatElevation(effort.Segment.TotalElevationGain),
			FormatDuration(effort.ElapsedTime),
			FormatDuration(effort.MovingTime),
			prRankLabel(effort.PRRank),
		})
	}
	table.Render()
}

func prRankLabel(rank *int) string {
	if rank == nil {
		return "-"
	}
	return strconv.Itoa(*rank)
}
