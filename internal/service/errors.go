package service

import "errors"

var (
	// ErrNotFound means the referenced game ID has no session document.
	ErrNotFound = errors.New("game id not found")
	// ErrValidation means a required input field was missing or empty.
	ErrValidation = errors.New("missing required field")
	// ErrNotStage3 means the ID exists but is not a stage-3 record.
	ErrNotStage3 = errors.New("game id is not a stage 3 id")
	// ErrAllocationExhausted means no unique ID was found within the retry
	// bound. Practically unreachable with a 36^3 ID space, but the loop must
	// not be unbounded.
	ErrAllocationExhausted = errors.New("could not allocate a unique game id")
	// ErrNoRankings distinguishes "nobody has finished yet" from an error;
	// callers show a dedicated message for it.
	ErrNoRankings = errors.New("no ranking data yet")
)
