// Package identity implements the phone-number identity provider: verify a
// phone with a one-time code, obtain a stable identity id and a session
// token. Code delivery (SMS) is out of scope; generated codes are handed to
// the configured sender, which defaults to a log line.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aidmap/internal/domain/entities"
	"aidmap/pkg/utils"
)

var (
	// ErrInvalidPhone is returned for numbers that cannot be normalized
	// into the supported +971 space.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidCode is returned when the submitted code does not match.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrUnknownSession is returned for session tokens with no identity.
	ErrUnknownSession = errors.New("unknown session")
)

// SendCodeFunc delivers a verification code to a phone number.
type SendCodeFunc func(phone, code string)

// Service issues phone-verification challenges and owns the identity
// registry and session table. One stable identity exists per phone number:
// re-verifying a known phone signs into the existing identity.
type Service struct {
	challenges ChallengeStore
	ttl        time.Duration
	sendCode   SendCodeFunc
	log        *zap.Logger

	mu         sync.RWMutex
	identities map[string]*entities.Identity // identity id → identity
	byPhone    map[string]string             // phone → identity id
	sessions   map[string]string             // session token → identity id
	watchers   map[int]func(*entities.Identity)
	nextWatch  int

	// codeFn generates a fresh verification code; replaced in tests.
	codeFn func() string
}

func NewService(challenges ChallengeStore, ttl time.Duration, sendCode SendCodeFunc, log *zap.Logger) *Service {
	s := &Service{
		challenges: challenges,
		ttl:        ttl,
		sendCode:   sendCode,
		log:        log,
		identities: make(map[string]*entities.Identity),
		byPhone:    make(map[string]string),
		sessions:   make(map[string]string),
		watchers:   make(map[int]func(*entities.Identity)),
		codeFn:     randomCode,
	}
	if s.sendCode == nil {
		s.sendCode = func(phone, code string) {
			log.Info("verification code issued", zap.String("phone", phone))
		}
	}
	return s
}

// NormalizePhone converts user input into +971XXXXXXXXX form. Accepted
// inputs: a full +971 number, or a local number with or without the leading
// zero (e.g. "0521234567" and "521234567").
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	digits := cleaned
	if strings.HasPrefix(cleaned, "+971") {
		digits = cleaned[len("+971"):]
	}
	digits = strings.TrimPrefix(digits, "0")

	if len(digits) != 9 {
		return "", ErrInvalidPhone
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", ErrInvalidPhone
		}
	}
	return "+971" + digits, nil
}

// VerifyPhone starts a verification: it normalizes the number, stores a
// fresh code under a new challenge id with the configured TTL, and hands
// the code to the sender.
func (s *Service) VerifyPhone(ctx context.Context, number string) (string, error) {
	phone, err := NormalizePhone(number)
	if err != nil {
		return "", err
	}

	challengeID := utils.GenerateID()
	code := s.codeFn()
	if err := s.challenges.Put(ctx, challengeID, Challenge{Phone: phone, Code: code}, s.ttl); err != nil {
		return "", fmt.Errorf("storing challenge: %w", err)
	}

	s.sendCode(phone, code)
	return challengeID, nil
}

// ConfirmChallenge completes a verification. On success the challenge is
// consumed, the phone's identity is created or reused, and a session token
// for it is returned. A wrong code leaves the challenge in place so the
// user may retry until the TTL lapses.
func (s *Service) ConfirmChallenge(ctx context.Context, challengeID, code string) (*entities.Identity, string, error) {
	ch, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, "", err
	}
	if ch.Code != code {
		return nil, "", ErrInvalidCode
	}
	if err := s.challenges.Delete(ctx, challengeID); err != nil {
		s.log.Warn("deleting consumed challenge", zap.Error(err))
	}

	s.mu.Lock()
	id, exists := s.byPhone[ch.Phone]
	if !exists {
		id = utils.GenerateID()
		s.identities[id] = &entities.Identity{ID: id, PhoneNumber: ch.Phone}
		s.byPhone[ch.Phone] = id
	}
	ident := *s.identities[id]
	token := utils.GenerateID()
	s.sessions[token] = id
	watchers := s.watcherList()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(&ident)
	}
	return &ident, token, nil
}

// Current resolves a session token to its identity, or nil.
func (s *Service) Current(token string) *entities.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessions[token]
	if !ok {
		return nil
	}
	ident, ok := s.identities[id]
	if !ok {
		return nil
	}
	copied := *ident
	return &copied
}

// Get returns the identity for an id, or nil.
func (s *Service) Get(id string) *entities.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[id]
	if !ok {
		return nil
	}
	copied := *ident
	return &copied
}

// UpdateDisplayName sets the display name on an identity.
func (s *Service) UpdateDisplayName(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return ErrUnknownSession
	}
	ident.DisplayName = name
	return nil
}

// SignOut invalidates a session token.
func (s *Service) SignOut(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	watchers := s.watcherList()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(nil)
	}
}

// Delete removes an identity and every session referring to it.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	ident, ok := s.identities[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	delete(s.byPhone, ident.PhoneNumber)
	delete(s.identities, id)
	for token, sessionID := range s.sessions {
		if sessionID == id {
			delete(s.sessions, token)
		}
	}
	watchers := s.watcherList()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(nil)
	}
	return nil
}

// Subscribe registers fn to observe sign-in (non-nil) and sign-out/delete
// (nil) events. The returned cancel func releases the watcher.
func (s *Service) Subscribe(fn func(*entities.Identity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWatch++
	watchID := s.nextWatch
	s.watchers[watchID] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, watchID)
	}
}

// watcherList snapshots the watchers; caller must hold the lock.
func (s *Service) watcherList() []func(*entities.Identity) {
	if len(s.watchers) == 0 {
		return nil
	}
	out := make([]func(*entities.Identity), 0, len(s.watchers))
	for _, fn := range s.watchers {
		out = append(out, fn)
	}
	return out
}

// randomCode returns a 6-digit verification code.
func randomCode() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1000000
	return fmt.Sprintf("%06d", n)
}
