package user

import (
	"context"
	"errors"
	"time"

	"communityshare.org/internal/resource"
)

const reviewLimit = 5000

// Review is a rating one account leaves about another.
type Review struct {
	ID            int
	UserID        int
	Rating        int
	Review        string
	CreatorUserID int
	Active        bool
	DateCreated   time.Time
}

func (r *Review) EntityID() int  { return r.ID }
func (r *Review) IsActive() bool { return r.Active }
func (r *Review) Deactivate()    { r.Active = false }

// ReviewDeps are the collaborators the review definition closes over.
type ReviewDeps struct {
	Reviews *ReviewStore
	Users   *Store
	Now     func() time.Time
}

// NewReviewDefinition builds the field capability descriptor for reviews.
// Both requester tiers read the same fields; nobody may delete.
func NewReviewDefinition(d ReviewDeps) (*resource.Definition[*Review], error) {
	if d.Now == nil {
		d.Now = time.Now
	}
	readable := []string{"id", "user_id", "rating", "review"}
	def := &resource.Definition[*Review]{
		Name: "user_review",
		Fields: resource.Fields{
			Mandatory:        []string{"user_id", "rating", "creator_user_id"},
			Writeable:        []string{"review"},
			StandardReadable: readable,
			AdminReadable:    readable,
		},
		Permissions: resource.Permissions{},
		New:         func() *Review { return &Review{Active: true, DateCreated: d.Now().UTC()} },
		Owner:       func(r *Review) int { return r.CreatorUserID },

		Getters: map[string]func(*Review) any{
			"user_id":         func(r *Review) any { return r.UserID },
			"rating":          func(r *Review) any { return r.Rating },
			"review":          func(r *Review) any { return r.Review },
			"creator_user_id": func(r *Review) any { return r.CreatorUserID },
		},
		Setters: map[string]func(*Review, any) error{
			"user_id": func(r *Review, v any) error {
				n, ok := resource.IntValue(v)
				if !ok {
					return typeError("user_id", "number")
				}
				r.UserID = n
				return nil
			},
			"rating": func(r *Review, v any) error {
				n, ok := resource.IntValue(v)
				if !ok {
					return typeError("rating", "number")
				}
				r.Rating = n
				return nil
			},
			"creator_user_id": func(r *Review, v any) error {
				n, ok := resource.IntValue(v)
				if !ok {
					return typeError("creator_user_id", "number")
				}
				r.CreatorUserID = n
				return nil
			},
		},
		Deserializers: map[string]func(*Review, any) error{
			"review": func(r *Review, v any) error {
				s, ok := resource.StringValue(v)
				if !ok {
					return typeError("review", "string")
				}
				if len(s) > reviewLimit {
					s = s[:reviewLimit]
				}
				r.Review = s
				return nil
			},
		},

		// A requester may review an existing, active account other than their
		// own, once. The creator is stamped here, never trusted from the
		// payload.
		HasAddRights: func(ctx context.Context, data map[string]any, r resource.Requester) (bool, error) {
			if r == nil {
				return false, nil
			}
			data["creator_user_id"] = r.RequesterID()
			targetID, ok := resource.IntValue(data["user_id"])
			if !ok || targetID == r.RequesterID() {
				return false, nil
			}
			if _, err := d.Users.FindActive(ctx, targetID); err != nil {
				if errors.Is(err, resource.ErrNotFound) {
					return false, nil
				}
				return false, err
			}
			exists, err := d.Reviews.ExistsByCreatorAndUser(ctx, r.RequesterID(), targetID)
			if err != nil {
				return false, err
			}
			return !exists, nil
		},

		Validate: func(_ context.Context, r *Review) error {
			if r.Rating < 0 {
				return &resource.ValidationError{Message: "Rating is negative."}
			}
			if r.Rating > 5 {
				return &resource.ValidationError{Message: "Rating is greater than 5."}
			}
			return nil
		},
	}
	return resource.NewDefinition(def)
}
