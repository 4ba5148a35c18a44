package protocol

import (
	"encoding/json"
	"time"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

type Type int64

const (
	ChangeNotify Type = iota + 1
	SubscribePath
	AckSubscribe
	Join
	AckJoin
)

func (t Type) String() string {
	switch t {
	case ChangeNotify:
		return "change-notify"
	case SubscribePath:
		return "subscribe-path"
	case AckSubscribe:
		return "ack-subscribe"
	case Join:
		return "join"
	case AckJoin:
		return "ack-join"
	default:
		return "unknown"
	}
}

/*
	client                                 server
	  Join (when auth is on) ----------------->
	  <------------------------------- AckJoin
	  SubscribePath -------------------------->
	  <-------------------------- AckSubscribe
	  <------------------ ChangeNotify (batch)
	  <------------------ ChangeNotify (batch)
*/

// Data
// General communication frame, one JSON document per line.
type Data struct {
	Sec     uint64                 `json:"sc"`
	Time    time.Time              `json:"t"`
	Type    Type                   `json:"tp"`
	Heading map[string]interface{} `json:"h,omitempty"`
	Payload json.RawMessage        `json:"p,omitempty"`
}

type JoinPayload struct {
	Username string `json:"u"`
	Password string `json:"pw"`
}

type AckJoinPayload struct {
	Ok  bool   `json:"ok"`
	Msg string `json:"m,omitempty"`
}

// SubscribePathPayload limits a subscription to records under Path. An
// empty Path receives everything.
type SubscribePathPayload struct {
	Path string `json:"p"`
	Id   string `json:"id"`
}

type AckSubscribePayload struct {
	Ok  bool   `json:"ok"`
	Msg string `json:"m,omitempty"`
}

// EventPayload is one delivered record as seen on the wire.
type EventPayload struct {
	Monitor    string    `json:"mn"`
	ID         uint64    `json:"id"`
	Path       string    `json:"p"`
	Actions    []string  `json:"a"`
	Item       []string  `json:"it,omitempty"`
	Flags      uint32    `json:"f"`
	CapturedAt time.Time `json:"ct"`
}

type ChangeNotifyPayload struct {
	Events []EventPayload `json:"e"`
}

func NewEventPayload(monitor string, e model.EventRecord) EventPayload {
	return EventPayload{
		Monitor:    monitor,
		ID:         e.ID,
		Path:       e.Path,
		Actions:    e.Actions.Labels(),
		Item:       e.ItemType.Labels(),
		Flags:      uint32(e.Flags),
		CapturedAt: e.CapturedAt,
	}
}
