package client

import (
	"fmt"

	"github.com/totegamma/concurrent-client/core"
)

type postMessageRequest struct {
	SignedObject string   `json:"signedObject"`
	Signature    string   `json:"signature"`
	Streams      []string `json:"streams"`
}

type postAssociationRequest struct {
	SignedObject string   `json:"signedObject"`
	Signature    string   `json:"signature"`
	Streams      []string `json:"streams"`
	TargetType   string   `json:"targetType"`
}

type putCharacterRequest struct {
	SignedObject string `json:"signedObject"`
	Signature    string `json:"signature"`
	ID           string `json:"id,omitempty"`
}

type putStreamRequest struct {
	SignedObject string `json:"signedObject"`
	Signature    string `json:"signature"`
	ID           string `json:"id,omitempty"`
}

type deleteRequest struct {
	ID string `json:"id"`
}

// CreateResponse is the normalized result of a write endpoint.
// Servers answer writes with slightly different shapes; everything is
// adapted to this one at the boundary.
type CreateResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type charactersResponse struct {
	Characters []core.Character `json:"characters"`
}

type associationResponse struct {
	Association core.Association `json:"association"`
}

type putCharacterResponse struct {
	Status  string         `json:"status"`
	Content core.Character `json:"content"`
}

// RequestError reports a non-2xx response with the raw server body.
type RequestError struct {
	Status int
	Body   string
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}
