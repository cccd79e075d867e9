package models

// Phase is the lifecycle phase of the player's current bet
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseSubmitting           Phase = "submitting"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseAwaitingReveal       Phase = "awaiting_reveal"
	PhaseRevealing            Phase = "revealing"
	PhaseSettled              Phase = "settled"
	PhaseRejected             Phase = "rejected"
)

// Terminal reports whether the phase only leaves via an explicit reset
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseRejected
}
