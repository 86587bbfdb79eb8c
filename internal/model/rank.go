package model

// RankEntry is a single row of the leaderboard, built from a completed root
// session. DisplayName is filled in by the messaging layer from the user's
// LINE profile and stays empty on the JSON API.
type RankEntry struct {
	Rank        int    `json:"rank"`
	GameID      string `json:"gameId"`
	LineUserID  string `json:"-"`
	DisplayName string `json:"displayName,omitempty"`
	TotalScore  int    `json:"totalScore"`
	Stage1Score int    `json:"stage1Score"`
	Stage2Score int    `json:"stage2Score"`
	Stage3Score int    `json:"stage3Score"`
}
