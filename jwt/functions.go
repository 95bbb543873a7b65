// Package jwt implements the CONCRNT-algorithm JWT used by
// credentialed API endpoints. The signature is the same recoverable
// secp256k1 scheme used for signed envelopes, so a stock JWT library
// cannot produce or check it.
package jwt

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/totegamma/concurrent-client/core"
)

// Create creates a signed JWT for the given claims
func Create(claims Claims, privatekey string) (string, error) {
	header := Header{
		Type:      "JWT",
		Algorithm: "CONCRNT",
	}
	headerStr, err := json.Marshal(header)
	if err != nil {
		return "", err
	}

	payloadStr, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	headerB64 := base64.RawURLEncoding.EncodeToString(headerStr)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadStr)
	target := headerB64 + "." + payloadB64

	signatureHex, err := core.SignBytes([]byte(target), privatekey)
	if err != nil {
		return "", err
	}
	signatureBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return "", err
	}
	signatureB64 := base64.RawURLEncoding.EncodeToString(signatureBytes)

	return target + "." + signatureB64, nil
}

// Validate checks a jwt signature is valid and the token not expired
func Validate(jwt string) (Claims, error) {

	var header Header
	var claims Claims

	split := strings.Split(jwt, ".")
	if len(split) != 3 {
		return claims, fmt.Errorf("invalid jwt format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(split[0])
	if err != nil {
		return claims, err
	}
	err = json.Unmarshal(headerBytes, &header)
	if err != nil {
		return claims, err
	}

	if header.Type != "JWT" || header.Algorithm != "CONCRNT" {
		return claims, fmt.Errorf("unsupported JWT type")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(split[1])
	if err != nil {
		return claims, err
	}
	err = json.Unmarshal(payloadBytes, &claims)
	if err != nil {
		return claims, err
	}

	if claims.ExpirationTime != "" {
		expire, err := strconv.ParseInt(claims.ExpirationTime, 10, 64)
		if err != nil {
			return claims, err
		}
		if time.Now().After(time.Unix(expire, 0)) {
			return claims, fmt.Errorf("jwt is already expired")
		}
	}

	signatureBytes, err := base64.RawURLEncoding.DecodeString(split[2])
	if err != nil {
		return claims, err
	}
	target := split[0] + "." + split[1]
	err = core.VerifySignature([]byte(target), hex.EncodeToString(signatureBytes), claims.Issuer)
	if err != nil {
		return claims, err
	}

	return claims, nil
}
