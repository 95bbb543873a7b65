package core

import (
	"encoding/hex"

	"github.com/cosmos/cosmos-sdk/codec/address"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"gitlab.com/yawning/secp256k1-voi/secec"
	"golang.org/x/crypto/sha3"
)

// GetHash returns the keccak256 hash of the given bytes
func GetHash(bytes []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(bytes)
	return hash.Sum(nil)
}

// SignBytes signs the given bytes with a hex-encoded private key and
// returns the hex-encoded recoverable signature
func SignBytes(bytes []byte, privatekey string) (string, error) {

	hashed := GetHash(bytes)

	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert private key")
	}

	signature, err := crypto.Sign(hashed, key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign message")
	}

	return hex.EncodeToString(signature), nil
}

// VerifySignature checks a hex-encoded signature against the address
// recovered from it
func VerifySignature(message []byte, signature string, addr string) error {

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return errors.Wrap(err, "failed to decode signature")
	}

	hashed := GetHash(message)

	recoveredPub, err := crypto.Ecrecover(hashed, sigBytes)
	if err != nil {
		return errors.Wrap(err, "failed to recover public key")
	}

	seckey, err := secec.NewPublicKey(recoveredPub)
	if err != nil {
		return errors.Wrap(err, "failed to parse recovered public key")
	}
	compressed := seckey.CompressedBytes()

	hrp := addr[:3]
	sigaddr, err := PubkeyBytesToAddr(compressed, hrp)
	if err != nil {
		return errors.Wrap(err, "failed to convert public key to address")
	}

	if sigaddr != addr {
		return errors.New("signature is not matched with address. expected: " + addr + ", actual: " + sigaddr)
	}

	return nil
}

// PubkeyBytesToAddr converts a compressed public key to a bech32 address
func PubkeyBytesToAddr(pubkeyBytes []byte, hrp string) (string, error) {
	pubkey := secp256k1.PubKey{
		Key: pubkeyBytes,
	}

	account := sdk.AccAddress(pubkey.Address())
	cdc := address.NewBech32Codec(hrp)
	addr, err := cdc.BytesToString(account)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert address")
	}

	return addr, nil
}

// PubkeyToAddr converts a hex-encoded public key to a bech32 address
func PubkeyToAddr(pubkeyHex string, hrp string) (string, error) {
	pubKeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode public key")
	}

	return PubkeyBytesToAddr(pubKeyBytes, hrp)
}

// PrivKeyToAddr derives the bech32 address of a hex-encoded private key
func PrivKeyToAddr(privKeyHex string, hrp string) (string, error) {
	privKeyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode private key")
	}

	privKey := secp256k1.PrivKey{
		Key: privKeyBytes,
	}

	pubkey := privKey.PubKey()

	return PubkeyBytesToAddr(pubkey.Bytes(), hrp)
}
