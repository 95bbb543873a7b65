package jwt

// Header is jwt header type
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// Claims is jwt payload type
type Claims struct {
	Issuer         string `json:"iss,omitempty"`
	Subject        string `json:"sub,omitempty"`
	Audience       string `json:"aud,omitempty"`
	ExpirationTime string `json:"exp,omitempty"`
	IssuedAt       string `json:"iat,omitempty"`
	JWTID          string `json:"jti,omitempty"`
}
