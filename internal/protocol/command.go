package protocol

// Command is the closed set of protocol verbs and numerics this client understands.
// Anything else parses as Unknown.
type Command int

const (
	Unknown Command = iota
	Privmsg
	Notice
	Ping
	Pong
	Join
	Part
	ClearChat
	ClearMsg
	UserState
	GlobalUserState
	Nick
	Pass
	Cap
	RplWelcome    // 001
	RplYourHost   // 002
	RplCreated    // 003
	RplMyInfo     // 004
	RplNamReply   // 353
	RplEndOfNames // 366
	RplMotd       // 372
	RplMotdStart  // 375
	RplEndOfMotd  // 376
	Reconnect
	ServerChange
	RoomState
	UserNotice
	Mode
)

var commandNames = [...]string{
	Unknown:         "",
	Privmsg:         "PRIVMSG",
	Notice:          "NOTICE",
	Ping:            "PING",
	Pong:            "PONG",
	Join:            "JOIN",
	Part:            "PART",
	ClearChat:       "CLEARCHAT",
	ClearMsg:        "CLEARMSG",
	UserState:       "USERSTATE",
	GlobalUserState: "GLOBALUSERSTATE",
	Nick:            "NICK",
	Pass:            "PASS",
	Cap:             "CAP",
	RplWelcome:      "001",
	RplYourHost:     "002",
	RplCreated:      "003",
	RplMyInfo:       "004",
	RplNamReply:     "353",
	RplEndOfNames:   "366",
	RplMotd:         "372",
	RplMotdStart:    "375",
	RplEndOfMotd:    "376",
	Reconnect:       "RECONNECT",
	ServerChange:    "SERVERCHANGE",
	RoomState:       "ROOMSTATE",
	UserNotice:      "USERNOTICE",
	Mode:            "MODE",
}

var commandsByName = func() map[string]Command {
	m := make(map[string]Command, len(commandNames))
	for c, name := range commandNames {
		if name != "" {
			m[name] = Command(c)
		}
	}
	return m
}()

// ParseCommand matches s case-sensitively against the known commands.
func ParseCommand(s string) Command {
	if c, ok := commandsByName[s]; ok {
		return c
	}
	return Unknown
}

// String returns the wire form of the command, or "UNKNOWN" for Unknown.
func (c Command) String() string {
	if c <= Unknown || int(c) >= len(commandNames) {
		return "UNKNOWN"
	}
	return commandNames[c]
}
