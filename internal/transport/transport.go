// Package transport defines the boundary types exchanged with the chat
// collaborator. The engine never sees raw transport payloads; inbound
// traffic arrives as structured Events and outbound traffic leaves as
// Replies through a Sender.
package transport

// EventKind discriminates the inbound event union.
type EventKind int

const (
	EventCommand EventKind = iota
	EventText
	EventButton
)

// Event is one structured user interaction.
type Event struct {
	UserID int64
	Name   string // display name from the transport profile
	Kind   EventKind

	Command string // EventCommand
	Text    string // EventText
	Action  string // EventButton: action tag
	Ref     string // EventButton: opaque reference id
}

// Button is one callback-bound response action.
type Button struct {
	Label  string
	Action string
	Ref    string
}

// Reply is one outbound message: text, optionally paired with a fixed
// choice keyboard or a set of callback buttons, plus an optional
// button-press acknowledgement.
type Reply struct {
	Text     string
	Keyboard [][]string
	Buttons  []Button
	Ack      string
}

// Sender delivers replies to a user outside of a webhook exchange.
type Sender interface {
	Send(userID int64, reply Reply) error
}
