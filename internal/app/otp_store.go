package app

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"bibliotrack/internal/util"
)

var (
	errOTPSendRateLimited  = errors.New("too many reset code requests")
	errOTPChallengeInvalid = errors.New("reset request is invalid or expired")
	errOTPCodeInvalid      = errors.New("incorrect reset code")
	errOTPCodeExpired      = errors.New("reset code expired")
)

// otpStore keeps password-reset challenges in Redis. Codes are bcrypt
// hashed; verification attempts are capped and resends throttled.
type otpStore struct {
	client            *redis.Client
	keyPrefix         string
	challengeTTL      time.Duration
	challengePersist  time.Duration
	resendAfter       time.Duration
	maxVerifyAttempts int
}

type otpChallenge struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	CodeHash   string    `json:"codeHash"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Attempts   int       `json:"attempts"`
	MaxAttempt int       `json:"maxAttempt"`
}

func newOTPStore(client *redis.Client) *otpStore {
	challengeTTL := 5 * time.Minute
	return &otpStore{
		client:            client,
		keyPrefix:         "bibliotrack:auth:reset",
		challengeTTL:      challengeTTL,
		challengePersist:  challengeTTL + time.Minute,
		resendAfter:       time.Minute,
		maxVerifyAttempts: 5,
	}
}

// CreateChallenge issues a fresh 6-digit code for the email. Returns the
// challenge id, the plain code for mailing, and the code TTL in seconds.
func (s *otpStore) CreateChallenge(ctx context.Context, email string) (string, string, int, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", "", 0, err
	}
	resendKey := s.resendKey(email)
	allowed, err := s.client.SetNX(ctx, resendKey, "1", s.resendAfter).Result()
	if err != nil {
		return "", "", 0, err
	}
	if !allowed {
		return "", "", 0, errOTPSendRateLimited
	}

	code, err := generateNumericCode(6)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return "", "", 0, fmt.Errorf("generate reset code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return "", "", 0, fmt.Errorf("hash reset code: %w", err)
	}
	challenge := otpChallenge{
		ID:         util.NewID(),
		Email:      email,
		CodeHash:   string(codeHash),
		ExpiresAt:  time.Now().UTC().Add(s.challengeTTL),
		MaxAttempt: s.maxVerifyAttempts,
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return "", "", 0, fmt.Errorf("marshal reset challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.challengeKey(challenge.ID), raw, s.challengePersist).Err(); err != nil {
		_ = s.client.Del(ctx, resendKey).Err()
		return "", "", 0, err
	}
	return challenge.ID, code, int(s.challengeTTL.Seconds()), nil
}

// VerifyChallenge consumes the challenge when the code matches. A wrong
// code burns one attempt; exhausting attempts or expiry deletes the
// challenge.
func (s *otpStore) VerifyChallenge(ctx context.Context, challengeID, email, code string) error {
	challengeID = strings.TrimSpace(challengeID)
	code = strings.TrimSpace(code)
	if challengeID == "" || code == "" {
		return errOTPChallengeInvalid
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	key := s.challengeKey(challengeID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return errOTPChallengeInvalid
	}
	if err != nil {
		return err
	}
	var challenge otpChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return fmt.Errorf("unmarshal reset challenge: %w", err)
	}
	if challenge.ID == "" || challenge.Email != email {
		return errOTPChallengeInvalid
	}
	if time.Now().UTC().After(challenge.ExpiresAt) {
		_ = s.client.Del(ctx, key).Err()
		return errOTPCodeExpired
	}
	if challenge.Attempts >= challenge.MaxAttempt {
		_ = s.client.Del(ctx, key).Err()
		return errOTPChallengeInvalid
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		challenge.Attempts++
		if challenge.Attempts >= challenge.MaxAttempt {
			_ = s.client.Del(ctx, key).Err()
		} else if updated, marshalErr := json.Marshal(challenge); marshalErr == nil {
			if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
				_ = s.client.Set(ctx, key, updated, ttl).Err()
			}
		}
		return errOTPCodeInvalid
	}
	return s.client.Del(ctx, key).Err()
}

func (s *otpStore) challengeKey(challengeID string) string {
	return fmt.Sprintf("%s:challenge:%s", s.keyPrefix, challengeID)
}

func (s *otpStore) resendKey(email string) string {
	return fmt.Sprintf("%s:resend:%s", s.keyPrefix, email)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", invalidf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", invalidf("email format is invalid")
	}
	return email, nil
}

func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func maskEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	switch len(local) {
	case 0:
		return "***@" + domain
	case 1, 2:
		return local[:1] + "***@" + domain
	default:
		return local[:1] + "***" + local[len(local)-1:] + "@" + domain
	}
}
