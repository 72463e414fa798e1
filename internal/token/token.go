// Package token issues and verifies signed bearer tokens carrying a
// user identity, built on stdlib crypto/hmac.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/model"
)

type Service struct {
	secret []byte
}

func New(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// envelope is the signed payload: the user identity plus its MAC, both
// wrapped in a single base64 string transmitted in the Authorization
// header.
type envelope struct {
	User model.User `json:"user"`
	MAC  []byte     `json:"mac"`
}

// Issue serialises u, signs it with HMAC-SHA256 and returns the
// base64-encoded token.
func (s *Service) Issue(u model.User) (string, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("token: marshal user: %w", err)
	}
	mac := s.sign(payload)
	env, err := json.Marshal(envelope{User: u, MAC: mac})
	if err != nil {
		return "", fmt.Errorf("token: marshal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(env), nil
}

// Verify decodes and authenticates token, returning the carried user.
func (s *Service) Verify(tok string) (model.User, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.ErrForbidden, "token: invalid encoding")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.User{}, apperr.Wrap(apperr.ErrForbidden, "token: invalid payload")
	}
	payload, err := json.Marshal(env.User)
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.ErrForbidden, "token: re-marshal user")
	}
	if !hmac.Equal(s.sign(payload), env.MAC) {
		return model.User{}, apperr.Wrap(apperr.ErrForbidden, "token: signature mismatch")
	}
	return env.User, nil
}

func (s *Service) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
