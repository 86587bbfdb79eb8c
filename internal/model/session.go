package model

import "time"

// State describes where a session chain is in its lifecycle. It is derived
// from the completion flags and never persisted; the legacy status strings in
// the Firestore export were written inconsistently and read nowhere.
type State string

const (
	StateStage1Active   State = "stage1-active"
	StateStage2Complete State = "stage1+2-complete"
	StateStage3Issued   State = "stage3-issued"
	StateStage3Complete State = "stage3-complete"
)

// Session is one game-session document, keyed by its short game ID. A root
// session (stage 1) owns the running score; a derived session (stage 3) points
// back at its root through OriginalGameID.
type Session struct {
	GameID         string `json:"gameId" bson:"_id"`
	LineUserID     string `json:"lineUserId" bson:"lineUserId"`
	Stage          int    `json:"stage" bson:"stage"`
	OriginalGameID string `json:"originalGameId,omitempty" bson:"originalGameId,omitempty"`
	Stage3ID       string `json:"stage3Id,omitempty" bson:"stage3Id,omitempty"`

	Stage1Completed bool `json:"stage1Completed" bson:"stage1Completed"`
	Stage2Completed bool `json:"stage2Completed" bson:"stage2Completed"`
	Stage3Completed bool `json:"stage3Completed" bson:"stage3Completed"`

	Stage1Score int `json:"stage1Score" bson:"stage1Score"`
	Stage2Score int `json:"stage2Score" bson:"stage2Score"`
	Stage3Score int `json:"stage3Score" bson:"stage3Score"`

	// Score is the running stage 1+2 subtotal on the root record.
	Score int `json:"score" bson:"score"`
	// TotalScore is written once onto the root record when stage 3 completes.
	TotalScore int `json:"totalScore,omitempty" bson:"totalScore,omitempty"`

	CreatedAt         time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt" bson:"updatedAt"`
	Stage2CompletedAt *time.Time `json:"stage2CompletedAt,omitempty" bson:"stage2CompletedAt,omitempty"`
	Stage3CompletedAt *time.Time `json:"stage3CompletedAt,omitempty" bson:"stage3CompletedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}

// IsDerived reports whether the session is a stage-3 record minted at the
// stage 2 boundary.
func (s *Session) IsDerived() bool {
	return s.Stage == 3
}

// State derives the lifecycle state from the completion flags.
func (s *Session) State() State {
	switch {
	case s.IsDerived() && s.Stage3Completed:
		return StateStage3Complete
	case s.IsDerived():
		return StateStage3Issued
	case s.Stage3Completed:
		return StateStage3Complete
	case s.Stage2Completed:
		return StateStage2Complete
	default:
		return StateStage1Active
	}
}
