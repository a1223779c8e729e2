package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrStateInvalid = errors.New("oauth state invalid")
	ErrStateExpired = errors.New("oauth state expired")
)

// stateTTL bounds how long a connect attempt may sit before the callback.
const stateTTL = 15 * time.Minute

// State is the blob carried through the storefront authorization redirect. It
// holds the custom app credentials the callback needs for the token exchange,
// so it is HMAC-signed to prevent tampering.
type State struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Domain       string `json:"domain"`
	StoreName    string `json:"store_name"`
	Nonce        string `json:"nonce"`
	IssuedAt     int64  `json:"issued_at"`
}

type StateCodec struct {
	secret []byte
	now    func() time.Time
}

func NewStateCodec(secret string) *StateCodec {
	return &StateCodec{secret: []byte(secret), now: time.Now}
}

// Encode stamps the state with a fresh nonce and timestamp and signs it.
// Output is base64url(payload).base64url(mac).
func (c *StateCodec) Encode(state State) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	state.Nonce = hex.EncodeToString(nonce)
	state.IssuedAt = c.now().UnixMilli()

	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)

	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Decode verifies the signature and the 15-minute expiry window.
func (c *StateCodec) Decode(encoded string) (*State, error) {
	parts := strings.Split(encoded, ".")
	if len(parts) != 2 {
		return nil, ErrStateInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrStateInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrStateInvalid
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrStateInvalid
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrStateInvalid
	}

	if c.now().UnixMilli()-state.IssuedAt > stateTTL.Milliseconds() {
		return nil, ErrStateExpired
	}
	return &state, nil
}
