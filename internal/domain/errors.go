package domain

import "errors"

var (
	// ErrEmptyBank indicates the question bank has no questions; fatal at load.
	ErrEmptyBank = errors.New("question bank is empty")
	// ErrMalformedQuestion indicates a question record failed validation; fatal at load.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrRoundNotActive is returned when a gameplay call arrives outside Playing.
	ErrRoundNotActive = errors.New("round not active")
	// ErrRoundInProgress is returned when starting a round that is already playing.
	ErrRoundInProgress = errors.New("round already in progress")
	// ErrUnknownPowerup indicates a powerup kind outside the known set.
	ErrUnknownPowerup = errors.New("unknown powerup kind")
	// ErrProfileNotFound indicates no stored document for the user; callers
	// should fall back to DefaultProfile rather than surface this.
	ErrProfileNotFound = errors.New("profile not found")
)
