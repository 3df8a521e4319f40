package chainz

import "time"

// Level classifies a Notice.
type Level int

// Notice levels.
const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a human-readable entry accumulated on a Message during a run.
// Source names the operation that recorded it when the runtime knows it.
type Notice struct {
	Time   time.Time
	Source Name
	Text   string
	Level  Level
}

func (n Notice) String() string {
	if n.Source == "" {
		return n.Level.String() + ": " + n.Text
	}
	return n.Level.String() + " [" + n.Source + "]: " + n.Text
}
