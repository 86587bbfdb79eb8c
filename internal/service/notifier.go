package service

import "context"

// Stage2Result is returned by CompleteStage2.
type Stage2Result struct {
	Stage3ID string
	// Subtotal is the stage 1+2 running score shown to the user.
	Subtotal int
	// Replayed is true when the notification was a duplicate and nothing
	// was written.
	Replayed bool
}

// Stage3Result is returned by CompleteStage3.
type Stage3Result struct {
	TotalScore  int
	Stage3Score int
	Subtotal    int
	// Rank is the 1-indexed leaderboard position, or -1 when unknown.
	Rank     int64
	Replayed bool
}

// Notifier delivers out-of-band messages to the owning user at stage
// boundaries. Implemented by the LINE transport; failures are logged by the
// caller and never fail the transition itself.
type Notifier interface {
	NotifyStage3Issued(ctx context.Context, lineUserID, stage3ID string, subtotal int) error
	NotifyCompleted(ctx context.Context, lineUserID string, result *Stage3Result) error
}
