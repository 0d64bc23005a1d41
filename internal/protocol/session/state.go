package session

import (
	"fmt"
	"strings"
)

// ConnectionState is the actor's position in the connection lifecycle.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Resolving
	Connecting
	AwaitingHandshake
	Ready
	Disconnecting
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Resolving:
		return "resolving"
	case Connecting:
		return "connecting"
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Ready:
		return "ready"
	case Disconnecting:
		return "disconnecting"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// AckMode is the acknowledgement policy requested on SUBSCRIBE.
type AckMode uint8

const (
	AckAuto AckMode = iota
	AckClient
	AckClientIndividual
)

func (m AckMode) String() string {
	switch m {
	case AckAuto:
		return "auto"
	case AckClient:
		return "client"
	case AckClientIndividual:
		return "client-individual"
	default:
		return fmt.Sprintf("ack(%d)", uint8(m))
	}
}

func (m AckMode) Valid() bool {
	return m <= AckClientIndividual
}

// RequiresAck reports whether MESSAGE frames must be answered with ACK/NACK.
func (m AckMode) RequiresAck() bool {
	return m == AckClient || m == AckClientIndividual
}

func ParseAckMode(s string) (AckMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return AckAuto, nil
	case "client":
		return AckClient, nil
	case "client-individual", "client_individual":
		return AckClientIndividual, nil
	default:
		return AckAuto, fmt.Errorf("%w: ack mode %q", ErrInvalidConfig, s)
	}
}
