package profile

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	applog "github.com/janisto/chatmate/internal/platform/logging"
)

// UsersCollection holds one document per principal.
const UsersCollection = "users"

// categorizeError converts errors to audit-safe categories.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return "deadline_exceeded"
	case status.Code(err) == codes.Unavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// userDocument is the stored layout shared with existing mobile clients.
type userDocument struct {
	UserID           string  `firestore:"userId"`
	Username         string  `firestore:"username"`
	UserEmail        string  `firestore:"userEmail"`
	UserProfileImage *string `firestore:"userProfileImage"`
	UserBio          string  `firestore:"userBio"`
	UserBioLink      *string `firestore:"userBioLink"`
	AddedAt          int64   `firestore:"addedAt"`
}

func toDocument(id string, p *Profile) userDocument {
	return userDocument{
		UserID:           id,
		Username:         p.Username,
		UserEmail:        p.Email,
		UserProfileImage: p.ImageURL,
		UserBio:          p.Bio,
		UserBioLink:      p.BioLink,
		AddedAt:          p.AddedAt,
	}
}

func (d userDocument) toProfile(docID string) Profile {
	id := d.UserID
	if id == "" {
		id = docID
	}
	return Profile{
		ID:       id,
		Username: d.Username,
		Email:    d.UserEmail,
		ImageURL: d.UserProfileImage,
		Bio:      d.UserBio,
		BioLink:  d.UserBioLink,
		AddedAt:  d.AddedAt,
	}
}

// FirestoreStore implements Store on the "users" collection.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*Profile, error) {
	doc, err := s.client.Collection(UsersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var d userDocument
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	p := d.toProfile(doc.Ref.ID)
	return &p, nil
}

func (s *FirestoreStore) Put(ctx context.Context, id string, p *Profile) error {
	_, err := s.client.Collection(UsersCollection).Doc(id).Set(ctx, toDocument(id, p))
	if err != nil {
		applog.LogAuditEvent(ctx, applog.AuditEvent{
			Action: "put", PrincipalID: id, ResourceType: "profile", ResourceID: id,
			Result: applog.AuditFailure, Details: map[string]any{"error": categorizeError(err)},
		})
		return err
	}
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action: "put", PrincipalID: id, ResourceType: "profile", ResourceID: id,
		Result: applog.AuditSuccess,
	})
	return nil
}

// ScanAll reads every document in the collection.
func (s *FirestoreStore) ScanAll(ctx context.Context) ([]Profile, error) {
	iter := s.client.Collection(UsersCollection).Documents(ctx)
	defer iter.Stop()

	var out []Profile
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var d userDocument
		if err := doc.DataTo(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toProfile(doc.Ref.ID))
	}
	return out, nil
}

// UsernameTaken checks username against every stored profile.
// TODO: switch to a unique-username index document once clients stop writing users directly.
func (s *FirestoreStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	profiles, err := s.ScanAll(ctx)
	if err != nil {
		return false, err
	}
	return usernameIn(profiles, username), nil
}

var _ Store = (*FirestoreStore)(nil)
