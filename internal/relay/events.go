package relay

import (
	"tutorhub/pkg/types"
)

// Inbound event names, as sent by the web client.
const (
	EventJoin        = "join"
	EventList        = "list"
	EventMessage     = "message"
	EventTyping      = "typing"
	EventNotTyping   = "notTyping"
	EventEnd         = "end"
	EventDrawClick   = "drawClick"
	EventDrawing     = "drawing"
	EventSaveImage   = "saveImage"
	EventUndoClick   = "undoClick"
	EventClearClick  = "clearClick"
	EventChangeColor = "changeColor"
	EventChangeWidth = "changeWidth"
	EventDragStart   = "dragStart"
	EventDragAction  = "dragAction"
	EventDragEnd     = "dragEnd"
	EventInsertText  = "insertText"
	EventResetScreen = "resetScreen"
)

// Frame is the JSON envelope for every inbound event. Whiteboard payloads are
// opaque to the server and forwarded untouched. The User field is only
// honored on join; every other event is attributed through the presence
// binding of the connection it arrived on.
type Frame struct {
	Type          string                 `json:"type"`
	SessionID     string                 `json:"sessionId,omitempty"`
	User          *types.User            `json:"user,omitempty"`
	Contents      string                 `json:"contents,omitempty"`
	WhiteboardURL string                 `json:"whiteboardUrl,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// sessionView is the session-change payload. The Student and Volunteer
// fields shadow the embedded id fields of the same JSON name, resolving them
// to the full user records of currently joined participants; a bare id stands
// in for anyone not connected.
type sessionView struct {
	*types.Session
	Student   interface{} `json:"student"`
	Volunteer interface{} `json:"volunteer,omitempty"`
}

// forwards maps each whiteboard-variant inbound event to its outbound event
// name and whether the sender is included in the broadcast.
var forwards = map[string]struct {
	out           string
	includeSender bool
}{
	EventDrawClick:   {out: "draw", includeSender: false},
	EventDrawing:     {out: "draw", includeSender: false},
	EventSaveImage:   {out: "save", includeSender: false},
	EventUndoClick:   {out: "undo", includeSender: false},
	EventClearClick:  {out: "clear", includeSender: true},
	EventChangeColor: {out: "color", includeSender: false},
	EventChangeWidth: {out: "width", includeSender: false},
	EventDragStart:   {out: "dstart", includeSender: false},
	EventDragAction:  {out: "drag", includeSender: false},
	EventDragEnd:     {out: "dend", includeSender: false},
	EventInsertText:  {out: "text", includeSender: true},
	EventResetScreen: {out: "reset", includeSender: true},
}
