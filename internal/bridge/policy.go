package bridge

import (
	"fmt"
	"strings"
)

// Policy decides what a runtime failure means for the queue record.
type Policy string

const (
	// PolicyNotify tells the user and treats the record as processed.
	PolicyNotify Policy = "notify"
	// PolicyRetry tells the user and reports the record failed so the
	// queue redelivers it until the redrive policy moves it to the DLQ.
	PolicyRetry Policy = "retry"
)

// ParsePolicy validates a configured policy name, ignoring case. Empty
// means notify.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case "", PolicyNotify:
		return PolicyNotify, nil
	case PolicyRetry:
		return PolicyRetry, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want notify or retry)", s)
}
