package frame

// Command is one token of the closed STOMP command set.
type Command uint8

const (
	Unknown Command = iota

	// client commands
	CONNECT
	DISCONNECT
	SEND
	SUBSCRIBE
	UNSUBSCRIBE
	BEGIN
	COMMIT
	ABORT
	ACK
	NACK

	// server commands (ACK and NACK are shared)
	CONNECTED
	MESSAGE
	RECEIPT
	ERROR

	commandCount
)

var commandNames = [commandCount]string{
	Unknown:     "",
	CONNECT:     "CONNECT",
	DISCONNECT:  "DISCONNECT",
	SEND:        "SEND",
	SUBSCRIBE:   "SUBSCRIBE",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	BEGIN:       "BEGIN",
	COMMIT:      "COMMIT",
	ABORT:       "ABORT",
	ACK:         "ACK",
	NACK:        "NACK",
	CONNECTED:   "CONNECTED",
	MESSAGE:     "MESSAGE",
	RECEIPT:     "RECEIPT",
	ERROR:       "ERROR",
}

func (c Command) String() string {
	if c >= commandCount {
		return "INVALID"
	}
	return commandNames[c]
}

// Valid reports whether c is a known, non-empty command.
func (c Command) Valid() bool {
	return c > Unknown && c < commandCount
}

// ParseCommand maps a wire token to its Command.
func ParseCommand(s string) (Command, bool) {
	for c := CONNECT; c < commandCount; c++ {
		if commandNames[c] == s {
			return c, true
		}
	}
	return Unknown, false
}

// CommandSet is a bitmask of commands accepted by a decoder.
type CommandSet uint32

const (
	ClientCommands CommandSet = 1<<CONNECT | 1<<DISCONNECT | 1<<SEND | 1<<SUBSCRIBE |
		1<<UNSUBSCRIBE | 1<<BEGIN | 1<<COMMIT | 1<<ABORT | 1<<ACK | 1<<NACK
	ServerCommands CommandSet = 1<<CONNECTED | 1<<MESSAGE | 1<<RECEIPT | 1<<ERROR |
		1<<ACK | 1<<NACK
)

func (s CommandSet) Has(c Command) bool {
	return c.Valid() && s&(1<<c) != 0
}

func (c Command) IsClient() bool { return ClientCommands.Has(c) }

func (c Command) IsServer() bool { return ServerCommands.Has(c) }
