package enums

import (
	"fmt"
	"strings"
)

// Processor names the external payment processor that owns a checkout session.
type Processor string

const (
	ProcessorStripe Processor = "stripe"
	ProcessorSquare Processor = "square"
)

func (p Processor) String() string {
	return string(p)
}

func ParseProcessor(value string) (Processor, error) {
	switch Processor(strings.ToLower(strings.TrimSpace(value))) {
	case ProcessorStripe:
		return ProcessorStripe, nil
	case ProcessorSquare:
		return ProcessorSquare, nil
	default:
		return "", fmt.Errorf("invalid processor %q", value)
	}
}
