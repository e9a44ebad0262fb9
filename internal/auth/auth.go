// Package auth provides the account collaborator used by the CLI. The feed
// core never depends on it.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"

	"blazealert/internal/storage"
	logx "blazealert/pkg/logx"
)

// SessionKey is the record key of the signed-in user.
const SessionKey = "blazeAlertUser"

const (
	DemoEmail    = "user@example.com"
	DemoPassword = "password"
	demoUID      = "123456"
)

// Error codes carried by AuthError.
const (
	CodeInvalidCredentials = "invalid-credentials"
	CodeInvalidEmail       = "invalid-email"
	CodeWeakPassword       = "weak-password"
	CodeEmailInUse         = "email-in-use"
	CodeNotSignedIn        = "not-signed-in"
	CodeUserNotFound       = "user-not-found"
	CodeUnavailable        = "unavailable"
)

type AuthError struct {
	Op   string
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Op, e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// User is the signed-in identity.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
	Login(ctx context.Context, email, password string) (*User, error)
	Signup(ctx context.Context, email, password string) (*User, error)
	Logout(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdateEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) error
}

type account struct {
	uid      string
	password string
}

// Local keeps accounts in memory (seeded with the demo account) and the
// session in a storage.Store, so a login survives restarts.
type Local struct {
	st  storage.Store
	log logx.Logger

	mu       sync.Mutex
	accounts map[string]account
}

var _ Provider = (*Local)(nil)

func NewLocal(st storage.Store, log logx.Logger) *Local {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Local{
		st:  st,
		log: log,
		accounts: map[string]account{
			DemoEmail: {uid: demoUID, password: DemoPassword},
		},
	}
}

func (l *Local) CurrentUser(ctx context.Context) (*User, error) {
	rec, ok, err := l.st.Get(ctx, SessionKey)
	if err != nil {
		return nil, &AuthError{Op: "current_user", Code: CodeUnavailable, Err: err}
	}
	if !ok {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal(rec.Value, &u); err != nil || u.UID == "" {
		// A corrupt session is the same as no session.
		l.log.Warn("discarding unreadable session", logx.Err(err))
		return nil, nil
	}
	return &u, nil
}

func (l *Local) Login(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	l.mu.Lock()
	acc, ok := l.accounts[email]
	l.mu.Unlock()
	if !ok || subtle.ConstantTimeCompare([]byte(acc.password), []byte(password)) != 1 {
		return nil, &AuthError{Op: "login", Code: CodeInvalidCredentials}
	}
	u := &User{UID: acc.uid, Email: email}
	if err := l.saveSession(ctx, u); err != nil {
		return nil, &AuthError{Op: "login", Code: CodeUnavailable, Err: err}
	}
	l.log.Info("signed in", logx.String("uid", u.UID))
	return u, nil
}

func (l *Local) Signup(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, &AuthError{Op: "signup", Code: CodeInvalidEmail, Err: err}
	}
	if len(password) < 6 {
		return nil, &AuthError{Op: "signup", Code: CodeWeakPassword}
	}
	l.mu.Lock()
	if _, exists := l.accounts[email]; exists {
		l.mu.Unlock()
		return nil, &AuthError{Op: "signup", Code: CodeEmailInUse}
	}
	acc := account{uid: uuid.NewString(), password: password}
	l.accounts[email] = acc
	l.mu.Unlock()

	u := &User{UID: acc.uid, Email: email}
	if err := l.saveSession(ctx, u); err != nil {
		return nil, &AuthError{Op: "signup", Code: CodeUnavailable, Err: err}
	}
	return u, nil
}

func (l *Local) Logout(ctx context.Context) error {
	if err := l.st.Delete(ctx, SessionKey); err != nil {
		return &AuthError{Op: "logout", Code: CodeUnavailable, Err: err}
	}
	return nil
}

// ResetPassword only checks that the account exists; there is no mailer.
func (l *Local) ResetPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	l.mu.Lock()
	_, ok := l.accounts[email]
	l.mu.Unlock()
	if !ok {
		return &AuthError{Op: "reset_password", Code: CodeUserNotFound}
	}
	l.log.Info("password reset requested", logx.String("email", email))
	return nil
}

func (l *Local) UpdateEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return &AuthError{Op: "update_email", Code: CodeInvalidEmail, Err: err}
	}
	u, err := l.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return &AuthError{Op: "update_email", Code: CodeNotSignedIn}
	}

	l.mu.Lock()
	if _, taken := l.accounts[email]; taken && email != u.Email {
		l.mu.Unlock()
		return &AuthError{Op: "update_email", Code: CodeEmailInUse}
	}
	acc, ok := l.accounts[u.Email]
	if !ok {
		acc = account{uid: u.UID}
	}
	delete(l.accounts, u.Email)
	l.accounts[email] = acc
	l.mu.Unlock()

	u.Email = email
	if err := l.saveSession(ctx, u); err != nil {
		return &AuthError{Op: "update_email", Code: CodeUnavailable, Err: err}
	}
	return nil
}

func (l *Local) UpdatePassword(ctx context.Context, password string) error {
	if len(password) < 6 {
		return &AuthError{Op: "update_password", Code: CodeWeakPassword}
	}
	u, err := l.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return &AuthError{Op: "update_password", Code: CodeNotSignedIn}
	}
	l.mu.Lock()
	acc := l.accounts[u.Email]
	acc.uid = u.UID
	acc.password = password
	l.accounts[u.Email] = acc
	l.mu.Unlock()
	return nil
}

func (l *Local) saveSession(ctx context.Context, u *User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return l.st.Put(ctx, SessionKey, b)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func checkEmail(s string) error {
	_, err := mail.ParseAddress(s)
	return err
}
