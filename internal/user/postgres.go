package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"communityshare.org/internal/auth"
	"communityshare.org/internal/resource"
)

const userColumns = `id, name, email, email_confirmed, active, password_hash,
	date_created, date_inactivated, is_administrator, last_active,
	wants_update_emails, picture_filename, bio, zipcode, phonenumber, website,
	twitter_handle, linkedin_link, year_of_birth, gender, ethnicity`

// Store implements the account storage accessor over PostgreSQL. It also
// serves as the resolver's account directory.
type Store struct {
	db *sql.DB
}

var (
	_ resource.Store[*User] = (*Store)(nil)
	_ auth.Directory        = (*Store)(nil)
)

// NewStore constructs a Store over an explicit database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Find(ctx context.Context, id int) (*User, error) {
	return s.one(ctx, `where id = $1`, id)
}

func (s *Store) FindActive(ctx context.Context, id int) (*User, error) {
	return s.one(ctx, `where id = $1 and active = true`, id)
}

// FindActiveByEmail returns the active account registered under the email.
func (s *Store) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `where email = $1 and active = true`, email)
}

func (s *Store) one(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resource.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) Search(ctx context.Context, q *resource.Query) ([]*User, error) {
	var (
		where []string
		args  []any
	)
	if q.ActiveOnly {
		where = append(where, "active = true")
	}
	if v, ok := q.Filters["email"]; ok {
		args = append(args, v)
		where = append(where, fmt.Sprintf("email = $%d", len(args)))
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(` order by id asc limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) Insert(ctx context.Context, u *User) error {
	return s.db.QueryRowContext(ctx,
		`insert into users(name, email, email_confirmed, active, password_hash,
			date_created, date_inactivated, is_administrator, last_active,
			wants_update_emails, picture_filename, bio, zipcode, phonenumber,
			website, twitter_handle, linkedin_link, year_of_birth, gender, ethnicity)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		 returning id`,
		u.Name, u.Email, u.EmailConfirmed, u.Active, u.PasswordHash,
		u.DateCreated, nullTime(u.DateInactivated), u.Administrator, nullTime(u.LastActive),
		u.WantsUpdateEmails, u.PictureFilename, u.Bio, u.Zipcode, u.Phonenumber,
		u.Website, u.TwitterHandle, u.LinkedinLink, u.YearOfBirth, u.Gender, u.Ethnicity,
	).Scan(&u.ID)
}

func (s *Store) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set name=$2, email=$3, email_confirmed=$4, active=$5,
			password_hash=$6, date_inactivated=$7, is_administrator=$8,
			last_active=$9, wants_update_emails=$10, picture_filename=$11,
			bio=$12, zipcode=$13, phonenumber=$14, website=$15,
			twitter_handle=$16, linkedin_link=$17, year_of_birth=$18,
			gender=$19, ethnicity=$20
		 where id = $1`,
		u.ID, u.Name, u.Email, u.EmailConfirmed, u.Active,
		u.PasswordHash, nullTime(u.DateInactivated), u.Administrator,
		nullTime(u.LastActive), u.WantsUpdateEmails, u.PictureFilename,
		u.Bio, u.Zipcode, u.Phonenumber, u.Website,
		u.TwitterHandle, u.LinkedinLink, u.YearOfBirth, u.Gender, u.Ethnicity,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return resource.ErrNotFound
	}
	return nil
}

// EmailInUse reports whether another active account already owns the email.
func (s *Store) EmailInUse(ctx context.Context, email string, excludeID int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from users where email = $1 and active = true and id <> $2`,
		email, excludeID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConfirmAllEmails marks every active, unconfirmed account as confirmed and
// reports how many rows changed.
func (s *Store) ConfirmAllEmails(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update users set email_confirmed = true where active = true and email_confirmed = false`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// NamesAndEmails returns the name and email of every account, inactive ones
// included, in id order.
func (s *Store) NamesAndEmails(ctx context.Context) ([][2]string, error) {
	rows, err := s.db.QueryContext(ctx, `select name, email from users order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var name, email string
		if err := rows.Scan(&name, &email); err != nil {
			return nil, err
		}
		out = append(out, [2]string{name, email})
	}
	return out, rows.Err()
}

// ActiveByID implements auth.Directory.
func (s *Store) ActiveByID(ctx context.Context, id int) (auth.Account, error) {
	return s.FindActive(ctx, id)
}

// ActiveByEmail implements auth.Directory.
func (s *Store) ActiveByEmail(ctx context.Context, email string) (auth.Account, error) {
	return s.FindActiveByEmail(ctx, email)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var (
		u           User
		inactivated sql.NullTime
		lastActive  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.EmailConfirmed, &u.Active, &u.PasswordHash,
		&u.DateCreated, &inactivated, &u.Administrator, &lastActive,
		&u.WantsUpdateEmails, &u.PictureFilename, &u.Bio, &u.Zipcode,
		&u.Phonenumber, &u.Website, &u.TwitterHandle, &u.LinkedinLink,
		&u.YearOfBirth, &u.Gender, &u.Ethnicity,
	)
	if err != nil {
		return nil, err
	}
	if inactivated.Valid {
		t := inactivated.Time
		u.DateInactivated = &t
	}
	if lastActive.Valid {
		t := lastActive.Time
		u.LastActive = &t
	}
	return &u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

const reviewColumns = `id, user_id, rating, review, creator_user_id, active, date_created`

// ReviewStore implements the review storage accessor over PostgreSQL.
type ReviewStore struct {
	db *sql.DB
}

var _ resource.Store[*Review] = (*ReviewStore)(nil)

// NewReviewStore constructs a ReviewStore.
func NewReviewStore(db *sql.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

func (s *ReviewStore) Find(ctx context.Context, id int) (*Review, error) {
	return s.one(ctx, `where id = $1`, id)
}

func (s *ReviewStore) FindActive(ctx context.Context, id int) (*Review, error) {
	return s.one(ctx, `where id = $1 and active = true`, id)
}

func (s *ReviewStore) one(ctx context.Context, where string, arg any) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `select `+reviewColumns+` from user_reviews `+where, arg)
	var r Review
	err := row.Scan(&r.ID, &r.UserID, &r.Rating, &r.Review, &r.CreatorUserID, &r.Active, &r.DateCreated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resource.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *ReviewStore) Search(ctx context.Context, q *resource.Query) ([]*Review, error) {
	var (
		where []string
		args  []any
	)
	if q.ActiveOnly {
		where = append(where, "active = true")
	}
	if v, ok := q.Filters["user_id"]; ok {
		args = append(args, v)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `select ` + reviewColumns + ` from user_reviews`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	args = append(args, q.Limit, q.Offset)
	query += fmt.Sprintf(` order by id asc limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.Rating, &r.Review, &r.CreatorUserID, &r.Active, &r.DateCreated); err != nil {
			return nil, err
		}
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}

func (s *ReviewStore) Insert(ctx context.Context, r *Review) error {
	return s.db.QueryRowContext(ctx,
		`insert into user_reviews(user_id, rating, review, creator_user_id, active, date_created)
		 values($1,$2,$3,$4,$5,$6) returning id`,
		r.UserID, r.Rating, r.Review, r.CreatorUserID, r.Active, r.DateCreated,
	).Scan(&r.ID)
}

func (s *ReviewStore) Update(ctx context.Context, r *Review) error {
	res, err := s.db.ExecContext(ctx,
		`update user_reviews set user_id=$2, rating=$3, review=$4,
			creator_user_id=$5, active=$6
		 where id = $1`,
		r.ID, r.UserID, r.Rating, r.Review, r.CreatorUserID, r.Active,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return resource.ErrNotFound
	}
	return nil
}

// ExistsByCreatorAndUser reports whether the creator already reviewed the
// target account.
func (s *ReviewStore) ExistsByCreatorAndUser(ctx context.Context, creatorID, userID int) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from user_reviews where creator_user_id = $1 and user_id = $2`,
		creatorID, userID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
