package strava

// TokenPayload mirrors the Strava token endpoint response. The relay returns it to
// clients verbatim; the client persists it wholesale.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

// Activity is the detailed activity representation, segment efforts included.
// Distances are meters, times are seconds, elevations are meters.
type Activity struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	Distance           float64         `json:"distance"`
	MovingTime         int             `json:"moving_time"`
	ElapsedTime        int             `json:"elapsed_time"`
	TotalElevationGain float64         `json:"total_elevation_gain"`
	SegmentEfforts     []SegmentEffort `json:"segment_efforts"`
}

// ActivitySummary is the element shape of the athlete activity listing.
type ActivitySummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SegmentEffort is one timed traversal of a segment within an activity.
// Slice order matches the provider response and reflects the order the efforts
// occurred, so it must be preserved through decode and render.
type SegmentEffort struct {
	ID               int64    `json:"id"`
	Segment          Segment  `json:"segment"`
	ElapsedTime      int      `json:"elapsed_time"`
	MovingTime       int      `json:"moving_time"`
	PRRank           *int     `json:"pr_rank,omitempty"`
	Achievements     []string `json:"achievements,omitempty"`
	AverageHeartrate *float64 `json:"average_heartrate,omitempty"`
	AverageWatts     *float64 `json:"average_watts,omitempty"`
}

// Segment describes the course a segment effort was ridden or run on.
type Segment struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Distance           float64 `json:"distance"`
	AverageGrade       float64 `json:"average_grade"`
	ElevationHigh      float64 `json:"elevation_high"`
	ElevationLow       float64 `json:"elevation_low"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
}
