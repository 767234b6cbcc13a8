package model

// LeaderboardEntry is one row of a ranked contributor or reviewer list.
type LeaderboardEntry struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Count    int64  `json:"count"`
}
