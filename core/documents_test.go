package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignedObjectRoundTrip(t *testing.T) {
	type note struct {
		Body string `json:"body"`
	}

	object := NewSignedObject(
		"con1t0tey8uxhkqkd4wcp4hd4jedt7f0vfhk29xdd2",
		"message",
		SchemaSimpleNote,
		note{Body: "hello world"},
	)

	assert.Equal(t, "message", object.Type)
	assert.Equal(t, ClientID, object.Meta.Client)
	assert.False(t, object.SignedAt.IsZero())

	// signedAt must survive a marshal/unmarshal cycle as a valid RFC3339 string
	document, err := json.Marshal(object)
	assert.NoError(t, err)

	var raw map[string]json.RawMessage
	err = json.Unmarshal(document, &raw)
	assert.NoError(t, err)

	var signedAt string
	err = json.Unmarshal(raw["signedAt"], &signedAt)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, signedAt)
	assert.NoError(t, err)

	var decoded SignedObject[note]
	err = json.Unmarshal(document, &decoded)
	assert.NoError(t, err)
	assert.Equal(t, object.Signer, decoded.Signer)
	assert.Equal(t, object.Schema, decoded.Schema)
	assert.Equal(t, object.Body, decoded.Body)
	assert.True(t, object.SignedAt.Equal(decoded.SignedAt))
}

func TestSignedObjectTargetOmitted(t *testing.T) {
	object := NewSignedObject("con1xxx", "message", SchemaSimpleNote, map[string]any{})

	document, err := json.Marshal(object)
	assert.NoError(t, err)
	assert.NotContains(t, string(document), "\"target\"")

	object.Target = "mxxxxxxxxxxxxxxxxxxxxxxxxxx"
	document, err = json.Marshal(object)
	assert.NoError(t, err)
	assert.Contains(t, string(document), "\"target\"")
}

func TestDecodePayload(t *testing.T) {
	type note struct {
		Body string `json:"body"`
	}

	object := NewSignedObject("con1xxx", "message", SchemaSimpleNote, note{Body: "ping"})
	document, err := json.Marshal(object)
	assert.NoError(t, err)

	decoded, err := DecodePayload[note](string(document))
	assert.NoError(t, err)
	assert.Equal(t, "ping", decoded.Body.Body)

	_, err = DecodePayload[note]("{broken")
	assert.Error(t, err)
}
