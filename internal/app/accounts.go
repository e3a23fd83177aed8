package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bibliotrack/internal/util"
	"bibliotrack/pkg/auth"
	"bibliotrack/pkg/domain"
)

const minPasswordLength = 8

// Session is the token pair returned on signup/login.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// SignUp registers a new account. The first registered account becomes
// admin.
func (a *App) SignUp(ctx context.Context, username, email, password string) (domain.User, Session, error) {
	username = strings.TrimSpace(username)
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, Session{}, err
	}
	if username == "" {
		return domain.User{}, Session{}, invalidf("username is required")
	}
	if len(password) < minPasswordLength {
		return domain.User{}, Session{}, invalidf("password must be at least %d characters", minPasswordLength)
	}
	if exists, err := a.store.HasUserEmail(email); err != nil {
		return domain.User{}, Session{}, fmt.Errorf("check email: %w", err)
	} else if exists {
		return domain.User{}, Session{}, wrapf(ErrConflict, "email already registered")
	}
	if exists, err := a.store.HasUsername(username); err != nil {
		return domain.User{}, Session{}, fmt.Errorf("check username: %w", err)
	} else if exists {
		return domain.User{}, Session{}, wrapf(ErrConflict, "username already taken")
	}

	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, Session{}, fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: auth.HashPassword(password),
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, Session{}, fmt.Errorf("save user: %w", err)
	}
	session, err := a.newSession(user.ID)
	if err != nil {
		return domain.User{}, Session{}, err
	}
	a.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, session, nil
}

// Login validates credentials. The identifier may be a username or email.
func (a *App) Login(ctx context.Context, identifier, password string) (domain.User, Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return domain.User{}, Session{}, invalidf("credentials required")
	}
	user, ok, err := a.lookupUser(identifier)
	if err != nil {
		return domain.User{}, Session{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, Session{}, wrapf(ErrUnauthorized, "invalid credentials")
	}
	if user.Status == domain.StatusDisabled {
		return domain.User{}, Session{}, wrapf(ErrForbidden, "account disabled")
	}
	session, err := a.newSession(user.ID)
	if err != nil {
		return domain.User{}, Session{}, err
	}
	return user, session, nil
}

func (a *App) lookupUser(identifier string) (domain.User, bool, error) {
	if strings.Contains(identifier, "@") {
		return a.store.GetUserByEmail(strings.ToLower(identifier))
	}
	return a.store.GetUserByUsername(identifier)
}

func (a *App) newSession(userID string) (Session, error) {
	access, err := a.sessions.NewSession(userID)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	session := Session{AccessToken: access, ExpiresIn: int64(a.accessTTL.Seconds())}
	if a.refresh != nil {
		refreshToken, err := a.refresh.NewToken(userID, a.refreshTTL)
		if err != nil {
			return Session{}, fmt.Errorf("issue refresh token: %w", err)
		}
		session.RefreshToken = refreshToken
	}
	return session, nil
}

// Refresh rotates the refresh token and issues a new access token. A
// replayed token revokes the whole family.
func (a *App) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if a.refresh == nil {
		return Session{}, wrapf(ErrNotConfigured, "refresh tokens disabled")
	}
	userID, next, err := a.refresh.RotateToken(refreshToken, a.refreshTTL)
	if err != nil {
		return Session{}, wrapf(ErrUnauthorized, "refresh rejected: %v", err)
	}
	access, err := a.sessions.NewSession(userID)
	if err != nil {
		return Session{}, fmt.Errorf("issue session: %w", err)
	}
	return Session{AccessToken: access, RefreshToken: next, ExpiresIn: int64(a.accessTTL.Seconds())}, nil
}

// Logout revokes the access token and, when present, the refresh token.
func (a *App) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := a.sessions.DeleteSession(accessToken); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if a.refresh != nil && refreshToken != "" {
		if err := a.refresh.DeleteToken(refreshToken); err != nil {
			a.logger.Warn("refresh token revoke failed", "error", err)
		}
	}
	return nil
}

// UserFromToken resolves an active user from an access token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found || user.Status == domain.StatusDisabled {
		return domain.User{}, false
	}
	return user, true
}

// UpdatePreferences replaces the caller's preference map.
func (a *App) UpdatePreferences(ctx context.Context, userID string, prefs map[string]string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, wrapf(ErrNotFound, "user %s", userID)
	}
	user.Preferences = prefs
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// RequestPasswordReset mails a 6-digit OTP to the account's address. To
// avoid account enumeration an unknown email still reports success.
func (a *App) RequestPasswordReset(ctx context.Context, email string) (challengeID string, expiresIn int, err error) {
	if a.otp == nil {
		return "", 0, wrapf(ErrNotConfigured, "password reset requires redis")
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return "", 0, err
	}
	_, known, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", 0, fmt.Errorf("fetch user: %w", err)
	}
	if !known {
		a.logger.Info("password reset for unknown email", "email", maskEmail(email))
		return util.NewID(), 300, nil
	}
	challengeID, code, expiresIn, err := a.otp.CreateChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, errOTPSendRateLimited) {
			return "", 0, wrapf(ErrConflict, "reset code already sent, retry later")
		}
		return "", 0, err
	}
	body := fmt.Sprintf("Your BiblioTrack password reset code is %s. It expires in 5 minutes.", code)
	if err := a.mailer.Send(email, "Password reset code", body); err != nil {
		a.logger.Error("reset code mail failed", "email", maskEmail(email), "error", err)
	}
	a.logger.Info("password reset requested", "email", maskEmail(email))
	return challengeID, expiresIn, nil
}

// ResetPassword verifies the OTP and sets the new password, revoking all
// existing sessions for the account.
func (a *App) ResetPassword(ctx context.Context, challengeID, email, code, newPassword string) error {
	if a.otp == nil {
		return wrapf(ErrNotConfigured, "password reset requires redis")
	}
	if len(newPassword) < minPasswordLength {
		return invalidf("password must be at least %d characters", minPasswordLength)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := a.otp.VerifyChallenge(ctx, challengeID, email, code); err != nil {
		switch {
		case errors.Is(err, errOTPCodeInvalid), errors.Is(err, errOTPCodeExpired), errors.Is(err, errOTPChallengeInvalid):
			return wrapf(ErrUnauthorized, "%v", err)
		default:
			return err
		}
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return wrapf(ErrNotFound, "account")
	}
	user.PasswordHash = auth.HashPassword(newPassword)
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if a.refresh != nil {
		if err := a.refresh.RevokeUserRefreshTokens(user.ID); err != nil {
			a.logger.Warn("refresh token family revoke failed", "user_id", user.ID, "error", err)
		}
	}
	a.logger.Info("password reset completed", "user_id", user.ID)
	return nil
}
