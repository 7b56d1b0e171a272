package util

import "errors"

// Call-level outcomes from the telephony provider. NoAnswer/Busy/Voicemail
// are retried with backoff; InvalidNumber flags the contact do-not-call.
var (
	ErrNoAnswer      = errors.New("no answer")
	ErrBusy          = errors.New("line busy")
	ErrVoicemail     = errors.New("voicemail answered")
	ErrInvalidNumber = errors.New("invalid phone number")
	ErrProvider      = errors.New("telephony provider error")
	ErrChannelClosed = errors.New("call channel closed")
	ErrSynthesis     = errors.New("speech synthesis failed")
	ErrRecognition   = errors.New("speech recognition failed")

	// Turn-level outcomes, handled inside the clarification-round budget.
	ErrSilence       = errors.New("no speech detected")
	ErrOracleTimeout = errors.New("clarification oracle timed out")

	ErrSurveyNotFound   = errors.New("survey not found")
	ErrContactNotFound  = errors.New("contact not found")
	ErrContactNotOwned  = errors.New("contact claimed by another worker")
	ErrAttemptNotFound  = errors.New("call attempt not found")
	ErrSurveyNotActive  = errors.New("survey is not active")
	ErrDialerNotRunning = errors.New("dialer is not running")
)
