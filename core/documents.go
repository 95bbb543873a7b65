package core

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Meta is envelope metadata
type Meta struct {
	Client string `json:"client"`
}

// SignedObject is the envelope signed by the author prior to transmission.
// Maintainer/Writer/Reader are only populated for stream envelopes,
// Target only for association envelopes.
type SignedObject[T any] struct {
	Signer     string    `json:"signer"`
	Type       string    `json:"type"`
	Schema     string    `json:"schema"`
	Body       T         `json:"body"`
	Meta       Meta      `json:"meta"`
	SignedAt   time.Time `json:"signedAt"`
	Target     string    `json:"target,omitempty"`
	Maintainer []string  `json:"maintainer,omitempty"`
	Writer     []string  `json:"writer,omitempty"`
	Reader     []string  `json:"reader,omitempty"`
}

// NewSignedObject builds a signed envelope for an outbound write.
// The body shape is not validated against the schema; that is the
// caller's responsibility.
func NewSignedObject[T any](signer string, objectType string, schema string, body T) SignedObject[T] {
	return SignedObject[T]{
		Signer:   signer,
		Type:     objectType,
		Schema:   schema,
		Body:     body,
		Meta:     Meta{Client: ClientID},
		SignedAt: time.Now().UTC(),
	}
}

// Seal marshals the envelope and signs the exact bytes that will be
// transmitted. The returned document string must be sent verbatim:
// servers recompute the signature over the received bytes.
func Seal[T any](object SignedObject[T], privatekey string) (string, string, error) {
	document, err := json.Marshal(object)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal signed object")
	}

	signature, err := SignBytes(document, privatekey)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to sign object")
	}

	return string(document), signature, nil
}

// DecodePayload parses a payload string fetched from a server back into
// a signed envelope.
func DecodePayload[T any](payload string) (SignedObject[T], error) {
	var object SignedObject[T]
	err := json.Unmarshal([]byte(payload), &object)
	if err != nil {
		return object, errors.Wrap(err, "failed to unmarshal payload")
	}
	return object, nil
}
