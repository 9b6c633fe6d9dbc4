package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrSenderRequired indicates a missing sender id.
	ErrSenderRequired = errors.New("sender id is required")
	// ErrRecipientRequired indicates a missing recipient id.
	ErrRecipientRequired = errors.New("recipient id is required")
	// ErrSkillRequired indicates a missing skill label.
	ErrSkillRequired = errors.New("skill is required")
	// ErrSelfInvitation indicates sender and recipient are the same user.
	ErrSelfInvitation = errors.New("sender and recipient must differ")
)

// Status represents the lifecycle status of an invitation.
type Status int

const (
	// StatusUnspecified represents an invalid invitation status.
	StatusUnspecified Status = iota
	// StatusPending indicates an invitation awaiting the recipient's decision.
	StatusPending
	// StatusAccepted indicates the recipient accepted; terminal.
	StatusAccepted
	// StatusDeclined indicates the recipient declined; terminal.
	StatusDeclined
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// StatusLabel returns the string label for an invitation status.
func StatusLabel(status Status) string {
	switch status {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusDeclined:
		return "declined"
	default:
		return "unspecified"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "pending":
		return StatusPending
	case "accepted":
		return StatusAccepted
	case "declined":
		return StatusDeclined
	default:
		return StatusUnspecified
	}
}

// Invitation is a one-directional request from a sender to a recipient to
// begin a skill exchange, with a terminal accept/decline outcome.
type Invitation struct {
	ID          string
	SenderID    string
	RecipientID string
	Skill       string
	Message     string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInvitationInput describes the metadata needed to create an invitation.
type CreateInvitationInput struct {
	SenderID    string
	RecipientID string
	Skill       string
	Message     string
}

// NormalizeCreateInvitationInput trims and validates invitation input metadata.
func NormalizeCreateInvitationInput(input CreateInvitationInput) (CreateInvitationInput, error) {
	input.SenderID = strings.TrimSpace(input.SenderID)
	if input.SenderID == "" {
		return CreateInvitationInput{}, ErrSenderRequired
	}
	input.RecipientID = strings.TrimSpace(input.RecipientID)
	if input.RecipientID == "" {
		return CreateInvitationInput{}, ErrRecipientRequired
	}
	if input.SenderID == input.RecipientID {
		return CreateInvitationInput{}, ErrSelfInvitation
	}
	input.Skill = strings.TrimSpace(input.Skill)
	if input.Skill == "" {
		return CreateInvitationInput{}, ErrSkillRequired
	}
	input.Message = strings.TrimSpace(input.Message)
	return input, nil
}
