package game

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type Event int

const (
	EventJoin   Event = iota + 1 // client asks to join.
	EventJoined                  // server accepted a join.
	EventUpdate                  // server broadcasts the world.
	EventMove                    // client reports its position.
)

var eventNames = map[Event]string{
	EventJoin:   "JOIN",
	EventJoined: "JOINED",
	EventUpdate: "UPDATE",
	EventMove:   "MOVE",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "UNKNOWN"
}

func (e Event) MarshalText() ([]byte, error) {
	name, ok := eventNames[e]
	if !ok {
		return nil, errors.Errorf("unknown event: %d", int(e))
	}
	return []byte(name), nil
}

func (e *Event) UnmarshalText(b []byte) error {
	for event, name := range eventNames {
		if name == string(b) {
			*e = event
			return nil
		}
	}
	return errors.Errorf("unknown event: %q", string(b))
}

// [X, Y]
type Vec [2]float64

type Player struct {
	Name     string `json:"name"`
	Position Vec    `json:"position"`
}

// Message is every packet of the game protocol.
// Which fields are set depends on Event:
//
//   - JOIN: Name
//   - JOINED: ID, Position
//   - UPDATE: Players
//   - MOVE: Position
type Message struct {
	Event    Event          `json:"event"`
	Name     string         `json:"name,omitempty"`
	ID       *int           `json:"id,omitempty"`
	Position *Vec           `json:"position,omitempty"`
	Players  map[int]Player `json:"players,omitempty"`
}

// NewState returns the world before anyone joined.
func NewState() Message {
	return Message{Event: EventUpdate, Players: map[int]Player{}}
}

func Join(name string) Message { return Message{Event: EventJoin, Name: name} }

func Joined(id int, pos Vec) Message { return Message{Event: EventJoined, ID: &id, Position: &pos} }

func Move(pos Vec) Message { return Message{Event: EventMove, Position: &pos} }

// message has the fields of Message without its methods.
type message Message

// An UPDATE always carries players, even when nobody joined yet.
type update struct {
	message
	Players map[int]Player `json:"players"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Event != EventUpdate {
		return json.Marshal(message(m))
	}

	players := m.Players
	if players == nil {
		players = map[int]Player{}
	}
	return json.Marshal(update{message: message(m), Players: players})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var raw message
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Event == 0 {
		return errors.New("event is missing")
	}

	*m = Message(raw)
	return nil
}
