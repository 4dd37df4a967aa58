package service

import (
	"fmt"
	"strings"

	"github.com/ayo6706/payment-bridge/internal/domain"
)

// TerminalPolicy decides whether a completed or failed record may still change status.
type TerminalPolicy string

const (
	// TerminalOverwrite lets a later terminal notification replace an earlier one.
	TerminalOverwrite TerminalPolicy = "overwrite"
	// TerminalImmutable freezes the status once terminal; payloads are still recorded.
	TerminalImmutable TerminalPolicy = "immutable"
)

func ParseTerminalPolicy(raw string) (TerminalPolicy, error) {
	switch p := TerminalPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return TerminalOverwrite, nil
	case TerminalOverwrite, TerminalImmutable:
		return p, nil
	default:
		return "", fmt.Errorf("unknown terminal policy %q", raw)
	}
}

var transactionTransitions = map[domain.Status]map[domain.Status]struct{}{
	domain.StatusPending: {
		domain.StatusProcessing: {},
		domain.StatusFailed:     {},
		// A settlement notification can beat the acknowledgement update.
		domain.StatusCompleted: {},
	},
	domain.StatusProcessing: {
		domain.StatusCompleted: {},
		domain.StatusFailed:    {},
	},
	domain.StatusCompleted: {},
	domain.StatusFailed:    {},
}

// canTransition reports whether current may move to next under policy.
// Staying in the same state is always allowed and is a no-op.
func canTransition(policy TerminalPolicy, current, next domain.Status) bool {
	if current == next {
		return true
	}
	if current.Terminal() && next.Terminal() {
		return policy != TerminalImmutable
	}
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}
