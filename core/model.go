package core

import (
	"time"
)

// Message is one of a concurrent base object
// immutable
type Message struct {
	ID           string        `json:"id"`
	Author       string        `json:"author"`
	Schema       string        `json:"schema"`
	Payload      string        `json:"payload"`
	Signature    string        `json:"signature"`
	CDate        time.Time     `json:"cdate"`
	Associations []Association `json:"associations,omitempty"`
	Streams      []string      `json:"streams"`
}

// Association is one of a concurrent base object
// immutable
type Association struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Schema     string    `json:"schema"`
	TargetID   string    `json:"targetID"`
	TargetType string    `json:"targetType"`
	Payload    string    `json:"payload"`
	Signature  string    `json:"signature"`
	CDate      time.Time `json:"cdate"`
	Streams    []string  `json:"streams"`
}

// Character is one of a concurrent base object
// mutable, at most one authoritative instance per (author, schema) on a host
type Character struct {
	ID           string        `json:"id"`
	Author       string        `json:"author"`
	Schema       string        `json:"schema"`
	Payload      string        `json:"payload"`
	Signature    string        `json:"signature"`
	Associations []Association `json:"associations,omitempty"`
	CDate        time.Time     `json:"cdate"`
	MDate        time.Time     `json:"mdate"`
}

// Stream is one of a concurrent base object
// mutable
type Stream struct {
	ID         string    `json:"id"`
	Author     string    `json:"author"`
	Maintainer []string  `json:"maintainer"`
	Writer     []string  `json:"writer"`
	Reader     []string  `json:"reader"`
	Schema     string    `json:"schema"`
	Payload    string    `json:"payload"`
	Signature  string    `json:"signature"`
	CDate      time.Time `json:"cdate"`
}

// StreamElement is a single entry of a stream timeline
type StreamElement struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Author    string `json:"author"`
	Host      string `json:"currenthost"`
	Stream    string `json:"stream"`
}

// Entity maps an address to its home host
type Entity struct {
	ID    string    `json:"ccaddr"`
	Role  string    `json:"role"`
	Host  string    `json:"host"`
	CDate time.Time `json:"cdate"`
}

// Host describes a server
type Host struct {
	ID     string    `json:"fqdn"`
	CCAddr string    `json:"ccaddr"`
	Role   string    `json:"role"`
	Pubkey string    `json:"pubkey"`
	CDate  time.Time `json:"cdate"`
}

// Event is the websocket root packet model
type Event struct {
	Stream string        `json:"stream"`
	Type   string        `json:"type"`
	Action string        `json:"action"`
	Body   StreamElement `json:"body"`
}

// Userstreams is the body of a userstreams character.
// It points at the three per-user system streams.
type Userstreams struct {
	HomeStream         string `json:"homeStream"`
	NotificationStream string `json:"notificationStream"`
	AssociationStream  string `json:"associationStream"`
}
