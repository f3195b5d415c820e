package services

import "errors"

var (
	ErrEmptyName           = errors.New("name cannot be empty")
	ErrDuplicateName       = errors.New("this name is already in use")
	ErrUnknownParticipant  = errors.New("participant not found")
	ErrGiverNotEligible    = errors.New("participant has already drawn")
	ErrNoEligibleReceivers = errors.New("no available recipients, everyone is already matched")
	ErrNoPendingMatch      = errors.New("no draw is waiting for confirmation")
	ErrStalePendingMatch   = errors.New("drawn recipient is no longer available, draw again")
	ErrMatchNotFound       = errors.New("match not found")
	ErrInvalidGroup        = errors.New("group id cannot be empty")
)
