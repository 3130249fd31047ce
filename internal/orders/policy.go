package orders

import (
	"fmt"
	"strings"
)

// Consistency selects how stock moves and the order write are tied together.
type Consistency string

const (
	// ConsistencyNone applies each write on its own; a failure leaves earlier writes in place.
	ConsistencyNone Consistency = "none"
	// ConsistencyCompensate undoes applied stock moves when a later step fails.
	ConsistencyCompensate Consistency = "compensate"
	// ConsistencyTransaction runs the whole operation in one database transaction.
	ConsistencyTransaction Consistency = "transaction"
)

func ParseConsistency(raw string) (Consistency, error) {
	switch c := Consistency(strings.ToLower(strings.TrimSpace(raw))); c {
	case ConsistencyNone, ConsistencyCompensate, ConsistencyTransaction:
		return c, nil
	case "":
		return ConsistencyTransaction, nil
	default:
		return "", fmt.Errorf("unknown stock consistency %q", raw)
	}
}

type Policy struct {
	TrustClientTotal   bool
	AllowNegativeStock bool
	Consistency        Consistency
}

func DefaultPolicy() Policy {
	return Policy{AllowNegativeStock: true, Consistency: ConsistencyTransaction}
}
