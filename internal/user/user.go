// Package user holds the account entity, its field capability descriptor,
// the review entity, their PostgreSQL stores, and the account flows (signup,
// password reset, email confirmation, api-key mint).
package user

import (
	"context"
	"fmt"
	"time"

	"communityshare.org/internal/auth"
	"communityshare.org/internal/mail"
	"communityshare.org/internal/resource"
)

const bioLimit = 1000

// User is an account. It doubles as the requester identity for owner checks.
type User struct {
	ID                int
	Name              string
	Email             string
	EmailConfirmed    bool
	Active            bool
	PasswordHash      string
	DateCreated       time.Time
	DateInactivated   *time.Time
	Administrator     bool
	LastActive        *time.Time
	WantsUpdateEmails bool
	PictureFilename   string
	Bio               string
	Zipcode           string
	Phonenumber       string
	Website           string
	TwitterHandle     string
	LinkedinLink      string
	YearOfBirth       int
	Gender            string
	Ethnicity         string
}

func (u *User) EntityID() int         { return u.ID }
func (u *User) IsActive() bool        { return u.Active }
func (u *User) Deactivate()           { u.Active = false }
func (u *User) RequesterID() int      { return u.ID }
func (u *User) IsAdministrator() bool { return u.Administrator }

// PasswordMatches verifies a plaintext password against the stored hash.
func (u *User) PasswordMatches(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return auth.VerifyPassword(u.PasswordHash, password) == nil
}

// SetPassword validates and hashes a new password. Policy failures come back
// as messages, not errors.
func (u *User) SetPassword(password string) ([]string, error) {
	if messages := auth.ValidatePassword(password); len(messages) > 0 {
		return messages, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	return nil, nil
}

// Deps are the collaborators the user definition closes over.
type Deps struct {
	Users          *Store
	Mail           mail.Sender
	Now            func() time.Time
	UploadLocation string
}

// NewDefinition builds the field capability descriptor for accounts.
//
// Add rights are always denied on the generic path: accounts come into being
// through the signup flow, which has its own policy.
func NewDefinition(d Deps) (*resource.Definition[*User], error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	def := &resource.Definition[*User]{
		Name: "user",
		Fields: resource.Fields{
			Mandatory: []string{"name", "email"},
			Writeable: []string{
				"email", "name", "is_administrator", "zipcode", "website",
				"twitter_handle", "linkedin_link", "year_of_birth", "gender",
				"ethnicity", "bio", "phonenumber", "wants_update_emails",
			},
			StandardReadable: []string{
				"id", "name", "is_administrator", "last_active", "zipcode",
				"website", "twitter_handle", "linkedin_link", "year_of_birth",
				"gender", "ethnicity", "bio", "picture_url", "email_confirmed",
				"active",
			},
			AdminReadable: []string{
				"id", "name", "email", "date_created", "last_active",
				"is_administrator", "zipcode", "phonenumber", "website",
				"twitter_handle", "linkedin_link", "year_of_birth", "gender",
				"ethnicity", "bio", "picture_url", "email_confirmed", "active",
				"wants_update_emails",
			},
		},
		Permissions: resource.Permissions{AdminCanDelete: true},
		New:         func() *User { return &User{Active: true, DateCreated: d.Now().UTC()} },
		Owner:       func(u *User) int { return u.ID },

		Getters: map[string]func(*User) any{
			"name":                func(u *User) any { return u.Name },
			"email":               func(u *User) any { return u.Email },
			"email_confirmed":     func(u *User) any { return u.EmailConfirmed },
			"active":              func(u *User) any { return u.Active },
			"is_administrator":    func(u *User) any { return u.Administrator },
			"date_created":        func(u *User) any { return u.DateCreated },
			"last_active":         func(u *User) any { return timeOrNil(u.LastActive) },
			"wants_update_emails": func(u *User) any { return u.WantsUpdateEmails },
			"bio":                 func(u *User) any { return u.Bio },
			"zipcode":             func(u *User) any { return u.Zipcode },
			"phonenumber":         func(u *User) any { return u.Phonenumber },
			"website":             func(u *User) any { return u.Website },
			"twitter_handle":      func(u *User) any { return u.TwitterHandle },
			"linkedin_link":       func(u *User) any { return u.LinkedinLink },
			"year_of_birth":       func(u *User) any { return u.YearOfBirth },
			"gender":              func(u *User) any { return u.Gender },
			"ethnicity":           func(u *User) any { return u.Ethnicity },
		},
		Setters: map[string]func(*User, any) error{
			"name":                stringSetter("name", func(u *User, v string) { u.Name = v }),
			"email":               stringSetter("email", func(u *User, v string) { u.Email = v }),
			"is_administrator":    boolSetter("is_administrator", func(u *User, v bool) { u.Administrator = v }),
			"wants_update_emails": boolSetter("wants_update_emails", func(u *User, v bool) { u.WantsUpdateEmails = v }),
			"zipcode":             stringSetter("zipcode", func(u *User, v string) { u.Zipcode = v }),
			"phonenumber":         stringSetter("phonenumber", func(u *User, v string) { u.Phonenumber = v }),
			"website":             stringSetter("website", func(u *User, v string) { u.Website = v }),
			"twitter_handle":      stringSetter("twitter_handle", func(u *User, v string) { u.TwitterHandle = v }),
			"linkedin_link":       stringSetter("linkedin_link", func(u *User, v string) { u.LinkedinLink = v }),
			"year_of_birth":       intSetter("year_of_birth", func(u *User, v int) { u.YearOfBirth = v }),
			"gender":              stringSetter("gender", func(u *User, v string) { u.Gender = v }),
			"ethnicity":           stringSetter("ethnicity", func(u *User, v string) { u.Ethnicity = v }),
		},

		Serializers: map[string]func(*User, resource.Requester) any{
			// picture_url composes the public URL; the raw filename is never
			// exposed.
			"picture_url": func(u *User, _ resource.Requester) any {
				if d.UploadLocation == "" || u.PictureFilename == "" {
					return ""
				}
				return d.UploadLocation + u.PictureFilename
			},
		},
		Deserializers: map[string]func(*User, any) error{
			"bio": func(u *User, v any) error {
				s, ok := resource.StringValue(v)
				if !ok {
					return typeError("bio", "string")
				}
				if len(s) > bioLimit {
					s = s[:bioLimit]
				}
				u.Bio = s
				return nil
			},
		},

		Validate: func(ctx context.Context, u *User) error {
			inUse, err := d.Users.EmailInUse(ctx, u.Email, u.ID)
			if err != nil {
				return err
			}
			if inUse {
				return &resource.ValidationError{Message: "That email is already being used."}
			}
			return nil
		},

		OnAdd: func(_ context.Context, u *User, _ resource.Requester) error {
			now := d.Now().UTC()
			u.LastActive = &now
			return nil
		},

		DeleteHook: func(ctx context.Context, u *User, _ resource.Requester) error {
			u.Deactivate()
			now := d.Now().UTC()
			u.DateInactivated = &now
			if d.Mail != nil {
				return d.Mail.Send(ctx, accountDeletionMessage(u))
			}
			return nil
		},
	}
	return resource.NewDefinition(def)
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func typeError(field, want string) error {
	return &resource.ValidationError{Message: fmt.Sprintf("Field %s must be a %s.", field, want)}
}

func stringSetter(field string, assign func(*User, string)) func(*User, any) error {
	return func(u *User, v any) error {
		s, ok := resource.StringValue(v)
		if !ok {
			return typeError(field, "string")
		}
		assign(u, s)
		return nil
	}
}

func boolSetter(field string, assign func(*User, bool)) func(*User, any) error {
	return func(u *User, v any) error {
		b, ok := resource.BoolValue(v)
		if !ok {
			return typeError(field, "boolean")
		}
		assign(u, b)
		return nil
	}
}

func intSetter(field string, assign func(*User, int)) func(*User, any) error {
	return func(u *User, v any) error {
		n, ok := resource.IntValue(v)
		if !ok {
			return typeError(field, "number")
		}
		assign(u, n)
		return nil
	}
}
