package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"communityshare.org/internal/mail"
	"communityshare.org/internal/resource"
	"communityshare.org/internal/secret"
)

// recordingSender captures outbound mail for assertions.
type recordingSender struct {
	sent []mail.Message
	fail error
}

func (s *recordingSender) Send(_ context.Context, m mail.Message) error {
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, m)
	return nil
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *recordingSender) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := NewStore(db)
	def := testDefinition(t, users)
	sender := &recordingSender{}
	svc := NewService(users, secret.NewStore(db), sender, def,
		WithClock(func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }))
	return svc, mock, sender
}

func TestSignupRequiresPassword(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("select count").
		WithArgs("new@example.com", 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := svc.Signup(context.Background(), map[string]any{
		"user": map[string]any{"name": "Ada", "email": "new@example.com"},
	})
	if !errors.Is(err, resource.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if resource.MessageOf(err) != `No password was found. Please include a "password" property in the payload.` {
		t.Fatalf("unexpected message: %q", resource.MessageOf(err))
	}
}

func TestSignupRejectsTakenEmail(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("select count").
		WithArgs("taken@example.com", 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := svc.Signup(context.Background(), map[string]any{
		"user":     map[string]any{"name": "Ada", "email": "taken@example.com"},
		"password": "longenough",
	})
	if resource.MessageOf(err) != "That email address is already associated with an account." {
		t.Fatalf("unexpected message: %q", resource.MessageOf(err))
	}
}

func TestSignupHappyPath(t *testing.T) {
	svc, mock, sender := newTestService(t)

	mock.ExpectQuery("select count").
		WithArgs("new@example.com", 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("insert into users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	// One secret per flow: the confirmation token, then the api key.
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := svc.Signup(context.Background(), map[string]any{
		"user":     map[string]any{"name": "Ada", "email": "new@example.com"},
		"password": "longenough",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if result.User.ID != 11 {
		t.Fatalf("id not assigned: %+v", result.User)
	}
	if result.User.LastActive == nil {
		t.Fatal("signup must stamp last_active")
	}
	if len(result.APIKey) != secret.KeyLength {
		t.Fatalf("unexpected api key length %d", len(result.APIKey))
	}
	if result.Warning != "" {
		t.Fatalf("unexpected warning: %q", result.Warning)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "new@example.com" {
		t.Fatalf("confirmation mail not sent: %v", sender.sent)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSignupMailFailureIsAWarning(t *testing.T) {
	svc, mock, sender := newTestService(t)
	sender.fail = errors.New("smtp down")

	mock.ExpectQuery("select count").
		WithArgs("new@example.com", 0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("insert into users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := svc.Signup(context.Background(), map[string]any{
		"user":     map[string]any{"name": "Ada", "email": "new@example.com"},
		"password": "longenough",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if result.Warning != "Failed to send email confirmation: smtp down" {
		t.Fatalf("unexpected warning: %q", result.Warning)
	}
	if result.APIKey == "" {
		t.Fatal("api key must still be minted")
	}
}

func TestResetPasswordValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ResetPassword(context.Background(), "", "longenough")
	if resource.MessageOf(err) != `No key found. Please include a "key" property with the password reset token in the payload.` {
		t.Fatalf("unexpected message: %q", resource.MessageOf(err))
	}

	_, err = svc.ResetPassword(context.Background(), "some-key", "short")
	if !errors.Is(err, resource.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for short password, got %v", err)
	}
}

func TestResetPasswordHappyPath(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expiry := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectQuery("update secrets set used = true").
		WithArgs("reset-key", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"key", "info", "expiration"}).
			AddRow("reset-key", `{"action":"password_reset","userId":5}`, expiry))
	mock.ExpectQuery("select (.+) from users where id = \\$1 and active = true").
		WithArgs(5).
		WillReturnRows(userRows(&User{ID: 5, Name: "Ada", Email: "ada@example.com", Active: true}))
	mock.ExpectExec("update users set").
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := svc.ResetPassword(context.Background(), "reset-key", "brand-new-pass")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if !u.PasswordMatches("brand-new-pass") {
		t.Fatal("new password does not verify")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetPasswordWrongAction(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expiry := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)

	// An email-confirmation token cannot reset a password.
	mock.ExpectQuery("update secrets set used = true").
		WithArgs("confirm-key", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"key", "info", "expiration"}).
			AddRow("confirm-key", `{"action":"email_confirmation","userId":5}`, expiry))

	_, err := svc.ResetPassword(context.Background(), "confirm-key", "brand-new-pass")
	if !errors.Is(err, resource.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestConfirmEmailHappyPath(t *testing.T) {
	svc, mock, _ := newTestService(t)
	expiry := time.Date(2026, 9, 3, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("update secrets set used = true").
		WithArgs("confirm-key", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"key", "info", "expiration"}).
			AddRow("confirm-key", `{"action":"email_confirmation","userId":5}`, expiry))
	mock.ExpectQuery("select (.+) from users where id = \\$1 and active = true").
		WithArgs(5).
		WillReturnRows(userRows(&User{ID: 5, Name: "Ada", Email: "ada@example.com", Active: true}))
	mock.ExpectExec("update users set").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	u, apiKey, err := svc.ConfirmEmail(context.Background(), "confirm-key")
	if err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}
	if !u.EmailConfirmed {
		t.Fatal("email not marked confirmed")
	}
	if len(apiKey) != secret.KeyLength {
		t.Fatalf("unexpected api key length %d", len(apiKey))
	}
}

func TestConfirmEmailRequiresKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.ConfirmEmail(context.Background(), "")
	if !errors.Is(err, resource.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("select (.+) from users where email = \\$1 and active = true").
		WithArgs("ghost@example.com").
		WillReturnRows(userRows())

	err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	if !errors.Is(err, resource.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestPasswordResetSendsKey(t *testing.T) {
	svc, mock, sender := newTestService(t)

	mock.ExpectQuery("select (.+) from users where email = \\$1 and active = true").
		WithArgs("ada@example.com").
		WillReturnRows(userRows(&User{ID: 5, Name: "Ada", Email: "ada@example.com", Active: true}))
	mock.ExpectExec("insert into secrets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := svc.RequestPasswordReset(context.Background(), "ada@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "ada@example.com" {
		t.Fatalf("reset mail not sent: %v", sender.sent)
	}
}

func TestConfirmAllEmails(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectExec("update users set email_confirmed = true where active = true and email_confirmed = false").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.ConfirmAllEmails(context.Background())
	if err != nil {
		t.Fatalf("ConfirmAllEmails: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 confirmed accounts, got %d", n)
	}
}

func TestExportCSV(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("select name, email from users order by id asc").
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).
			AddRow("Ada", "ada@example.com").
			AddRow("Bea", "bea@example.com"))

	doc, err := svc.ExportCSV(context.Background())
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	want := "username,email\nAda,ada@example.com\nBea,bea@example.com\n"
	if string(doc) != want {
		t.Fatalf("unexpected CSV:\n got %q\nwant %q", doc, want)
	}
}
