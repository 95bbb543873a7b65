package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	RootKey  = "con1fk8zlkrfmens3sgj7dzcu3gsw8v9kkysrf8dt5"
	RootPriv = "1236fa65392e99067750aaed5fd4d9ff93f51fd088e94963e51669396cdd597c"
	RootPub  = "020bb249a8bb7a10defe954abba5a4320cabb6c49513bfaf6b204ca8c4e4248c01"
)

func TestSignature(t *testing.T) {
	message := "hello"

	signature, err := SignBytes([]byte(message), RootPriv)
	assert.NoError(t, err)

	err = VerifySignature([]byte(message), signature, RootKey)
	assert.NoError(t, err)

	err = VerifySignature([]byte("tampered"), signature, RootKey)
	assert.Error(t, err)
}

func TestAddressDerivation(t *testing.T) {
	addr, err := PrivKeyToAddr(RootPriv, "con")
	assert.NoError(t, err)
	assert.Equal(t, RootKey, addr)

	addr, err = PubkeyToAddr(RootPub, "con")
	assert.NoError(t, err)
	assert.Equal(t, RootKey, addr)
}

func TestSealVerifies(t *testing.T) {
	object := NewSignedObject(RootKey, "message", SchemaSimpleNote, map[string]any{"body": "hello"})

	document, signature, err := Seal(object, RootPriv)
	assert.NoError(t, err)

	err = VerifySignature([]byte(document), signature, RootKey)
	assert.NoError(t, err)
}
