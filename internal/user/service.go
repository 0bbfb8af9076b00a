package user

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"communityshare.org/internal/auth"
	"communityshare.org/internal/mail"
	"communityshare.org/internal/resource"
	"communityshare.org/internal/secret"
)

// Token lifetimes per action.
const (
	APIKeyTTL            = 24 * time.Hour
	PasswordResetTTL     = time.Hour
	EmailConfirmationTTL = 48 * time.Hour
)

// Service implements the account flows built on the token store: signup,
// password reset, email confirmation and api-key issuance. These live outside
// the generic CRUD path because each has its own rights policy.
type Service struct {
	users   *Store
	secrets *secret.Store
	mail    mail.Sender
	def     *resource.Definition[*User]
	now     func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the account flows over their collaborators.
func NewService(users *Store, secrets *secret.Store, sender mail.Sender, def *resource.Definition[*User], opts ...ServiceOption) *Service {
	s := &Service{users: users, secrets: secrets, mail: sender, def: def, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupResult is what a successful signup hands back to the caller: the new
// account, a ready api key and an optional warning about the confirmation
// mail.
type SignupResult struct {
	User    *User
	APIKey  string
	Warning string
}

// Signup creates an account from a payload of the form
// {"user": {...}, "password": "..."}. A confirmation-mail failure does not
// fail the signup; it comes back as a warning.
func (s *Service) Signup(ctx context.Context, data map[string]any) (*SignupResult, error) {
	userData, ok := data["user"].(map[string]any)
	if !ok {
		return nil, resource.BadRequestf(`No user was found. Please include a "user" property in the payload.`)
	}
	email, _ := userData["email"].(string)
	inUse, err := s.users.EmailInUse(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, resource.BadRequestf("That email address is already associated with an account.")
	}
	rawPassword, ok := data["password"]
	if !ok || rawPassword == nil {
		return nil, resource.BadRequestf(`No password was found. Please include a "password" property in the payload.`)
	}
	password, ok := rawPassword.(string)
	if !ok {
		return nil, resource.BadRequestf(`No password was found. Please include a "password" property in the payload.`)
	}

	u, err := s.def.DeserializeAdd(userData)
	if err != nil {
		return nil, asBadRequest(err)
	}
	messages, err := u.SetPassword(password)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return nil, resource.BadRequestf("%s", strings.Join(messages, ", "))
	}
	now := s.now().UTC()
	u.LastActive = &now
	if err := s.users.Insert(ctx, u); err != nil {
		return nil, err
	}

	result := &SignupResult{User: u}
	if err := s.sendEmailConfirmation(ctx, u); err != nil {
		result.Warning = fmt.Sprintf("Failed to send email confirmation: %v", err)
	}
	key, err := s.MintAPIKey(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	result.APIKey = key
	return result, nil
}

// RequestPasswordReset issues a one-hour reset token and mails it. An unknown
// or inactive email is reported as NotFound; this endpoint does not hide
// account existence.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		return err
	}
	tok, err := s.secrets.Issue(ctx, secret.UserPayload(secret.ActionPasswordReset, u.ID), PasswordResetTTL)
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, passwordResetMessage(u, tok.Key))
}

// ResetPassword redeems a reset token and installs the new password. The
// token is consumed atomically, so a key redeems at most once even under
// concurrent requests.
func (s *Service) ResetPassword(ctx context.Context, key, password string) (*User, error) {
	if key == "" {
		return nil, resource.BadRequestf(`No key found. Please include a "key" property with the password reset token in the payload.`)
	}
	if len(password) < auth.MinPasswordLength {
		return nil, resource.BadRequestf(`New password was missing, blank, or too short. Please include a "password" property in the payload, and ensure that the password is at least 8 characters long.`)
	}
	u, err := s.redeem(ctx, key, secret.ActionPasswordReset, "The password reset key is invalid or has expired.")
	if err != nil {
		return nil, err
	}
	messages, err := u.SetPassword(password)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return nil, resource.BadRequestf("%s", strings.Join(messages, ", "))
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RequestEmailConfirmation issues a confirmation token for the account and
// mails it.
func (s *Service) RequestEmailConfirmation(ctx context.Context, userID int) error {
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return err
	}
	return s.sendEmailConfirmation(ctx, u)
}

// ConfirmEmail redeems a confirmation token, marks the email confirmed and
// mints a fresh api key so the client can log straight in.
func (s *Service) ConfirmEmail(ctx context.Context, key string) (*User, string, error) {
	if key == "" {
		return nil, "", resource.BadRequestf(`Key not found. Please include a "key" property in the payload that contains the confirmation token that was provided via email.`)
	}
	u, err := s.redeem(ctx, key, secret.ActionEmailConfirmation, "The email confirmation key is invalid or has expired.")
	if err != nil {
		return nil, "", err
	}
	u.EmailConfirmed = true
	if err := s.users.Update(ctx, u); err != nil {
		return nil, "", err
	}
	apiKey, err := s.MintAPIKey(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, apiKey, nil
}

// ConfirmAllEmails is the admin backfill that marks every active, unconfirmed
// account as confirmed. It reports how many accounts changed.
func (s *Service) ConfirmAllEmails(ctx context.Context) (int, error) {
	return s.users.ConfirmAllEmails(ctx)
}

// ExportCSV renders every account, inactive ones included, as a
// username/email CSV document for the admin dump endpoint.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	accounts, err := s.users.NamesAndEmails(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"username", "email"}); err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if err := w.Write([]string{a[0], a[1]}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MintAPIKey issues an api-key token carrying the user id.
func (s *Service) MintAPIKey(ctx context.Context, userID int) (string, error) {
	tok, err := s.secrets.Issue(ctx, secret.UserPayload(secret.ActionAPIKey, userID), APIKeyTTL)
	if err != nil {
		return "", err
	}
	return tok.Key, nil
}

// redeem consumes a token, checks its action tag and loads the account it
// names. Every failure mode collapses into the same BadRequest so callers
// learn nothing about why a key was rejected.
func (s *Service) redeem(ctx context.Context, key, action, rejection string) (*User, error) {
	tok, err := s.secrets.Consume(ctx, key)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, resource.BadRequestf("%s", rejection)
	}
	info := tok.Payload()
	if info == nil {
		return nil, resource.BadRequestf("%s", rejection)
	}
	if got, _ := info[secret.PayloadAction].(string); got != action {
		return nil, resource.BadRequestf("%s", rejection)
	}
	userID, ok := payloadUserID(info)
	if !ok {
		return nil, resource.BadRequestf("%s", rejection)
	}
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return nil, resource.BadRequestf("%s", rejection)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) sendEmailConfirmation(ctx context.Context, u *User) error {
	tok, err := s.secrets.Issue(ctx, secret.UserPayload(secret.ActionEmailConfirmation, u.ID), EmailConfirmationTTL)
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, emailConfirmationMessage(u, tok.Key))
}

func payloadUserID(info map[string]any) (int, bool) {
	switch v := info[secret.PayloadUserID].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func asBadRequest(err error) error {
	var ve *resource.ValidationError
	if errors.As(err, &ve) {
		return resource.BadRequestf("%s", ve.Message)
	}
	return err
}

func emailConfirmationMessage(u *User, key string) mail.Message {
	return mail.Message{
		To:      u.Email,
		Subject: "Confirm your Community Share email address",
		Body: fmt.Sprintf(
			"Hi %s,\n\nPlease confirm your email address using this key: %s\n",
			u.Name, key),
	}
}

func passwordResetMessage(u *User, key string) mail.Message {
	return mail.Message{
		To:      u.Email,
		Subject: "Community Share password reset",
		Body: fmt.Sprintf(
			"Hi %s,\n\nUse this key to reset your password: %s\nThe key expires in one hour.\n",
			u.Name, key),
	}
}

func accountDeletionMessage(u *User) mail.Message {
	return mail.Message{
		To:      u.Email,
		Subject: "Your Community Share account was deactivated",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour account has been deactivated. Contact us if this was a mistake.\n",
			u.Name),
	}
}
