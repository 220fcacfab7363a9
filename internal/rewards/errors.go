package rewards

import "errors"

var (
	// ErrProgramNotFound is returned when the reward program does not exist.
	ErrProgramNotFound = errors.New("reward program not found")

	// ErrProgramInactive is returned when assigning a program that is switched
	// off or outside its start/end window.
	ErrProgramInactive = errors.New("reward program is not active")

	// ErrUserNotFound is returned when the member does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// ClaimOutcome is the result of a claim attempt. Only ClaimSucceeded changes state.
type ClaimOutcome string

const (
	ClaimSucceeded      ClaimOutcome = "claimed"
	ClaimAlreadyClaimed ClaimOutcome = "already_claimed"
	ClaimNotEligible    ClaimOutcome = "not_eligible"
	ClaimExpired        ClaimOutcome = "expired"
	ClaimNotFound       ClaimOutcome = "not_found"

	// ClaimBusy means another instance holds the claim lock for this reward.
	ClaimBusy ClaimOutcome = "busy"
)
