// Package signal holds the user-visible signals the core emits to the
// presentation layer. It never decides how they render.
package signal

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func Success(msg string) Notice { return Notice{Level: LevelSuccess, Message: msg} }
func Warning(msg string) Notice { return Notice{Level: LevelWarning, Message: msg} }
func Danger(msg string) Notice  { return Notice{Level: LevelDanger, Message: msg} }

type Kind string

const (
	KindTurnAppended Kind = "turn_appended"
	KindNotice       Kind = "notice"
	KindRefresh      Kind = "refresh"
)

// Event is one signal addressed to a session's live views.
type Event struct {
	Kind      Kind     `json:"kind"`
	SessionID string   `json:"session_id"`
	Turn      any      `json:"turn,omitempty"`
	Notice    *Notice  `json:"notice,omitempty"`
	Models    []string `json:"models,omitempty"`
}

// Sink receives events. Publish must not block the caller for long.
type Sink interface {
	Publish(ev Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
