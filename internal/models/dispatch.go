package models

import (
	"strings"
	"time"
)

// Mode is the currently selected response backend.
type Mode string

// Operating modes. NanoGPT is backend A, Grok is backend B.
const (
	ModeNanoGPT Mode = "nanogpt"
	ModeGrok    Mode = "grok"
	ModeOffline Mode = "offline"
)

// Pretty returns the display name of the mode.
func (m Mode) Pretty() string {
	switch m {
	case ModeNanoGPT:
		return "NanoGPT"
	case ModeGrok:
		return "Grok"
	case ModeOffline:
		return "Offline"
	default:
		return strings.ToUpper(string(m))
	}
}

// Remote reports whether the mode talks to an external backend.
func (m Mode) Remote() bool {
	return m == ModeNanoGPT || m == ModeGrok
}

// Outcome classifies how a dispatch was resolved.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeSuccess     Outcome = "success"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeFailure     Outcome = "failure"
	OutcomeSwitched    Outcome = "switched-mode"
	OutcomeOffline     Outcome = "offline"
	OutcomeConfigError Outcome = "config-error"
	OutcomeControl     Outcome = "control"
)

// DispatchResult is the reply to one line of user input.
type DispatchResult struct {
	Text     string
	Outcome  Outcome
	Mode     Mode // mode that handled the input
	Duration time.Duration
}

// QARecord is one entry of the offline corpus.
type QARecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NanoGPTInfo is the metadata trailer NanoGPT appends to a reply.
type NanoGPTInfo struct {
	Cost         float64 `json:"cost"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
}

// Balance holds a NanoGPT account balance.
type Balance struct {
	Balance string `json:"balance"`
}
