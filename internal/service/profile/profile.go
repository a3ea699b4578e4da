package profile

import (
	"context"
	"errors"

	"github.com/janisto/chatmate/internal/platform/timeutil"
)

// DefaultBio is stored when a profile is created without a biography.
const DefaultBio = "Hey there! I'm using ChatMate🔥"

// ErrNotFound is returned when no profile document exists for an ID.
var ErrNotFound = errors.New("profile not found")

// Profile is one application user, keyed by the identity principal ID.
type Profile struct {
	ID       string  `json:"id"                 doc:"Principal identifier"`
	Username string  `json:"username"           doc:"Unique display name"`
	Email    string  `json:"email"              doc:"Email captured at account creation"`
	ImageURL *string `json:"imageUrl,omitempty" doc:"Retrievable profile image URL"`
	Bio      string  `json:"bio"                doc:"Biography"`
	BioLink  *string `json:"bioLink,omitempty"  doc:"Biography link"`
	AddedAt  int64   `json:"addedAt"            doc:"Creation time, epoch milliseconds"`
}

// New builds a profile stamped with the current time. An empty bio becomes DefaultBio.
func New(id, username, email string, imageURL, bioLink *string, bio string) *Profile {
	if bio == "" {
		bio = DefaultBio
	}
	return &Profile{
		ID:       id,
		Username: username,
		Email:    email,
		ImageURL: cloneString(imageURL),
		Bio:      bio,
		BioLink:  cloneString(bioLink),
		AddedAt:  timeutil.NowMillis(),
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.ImageURL = cloneString(p.ImageURL)
	c.BioLink = cloneString(p.BioLink)
	return &c
}

// Store persists profiles as one document per principal ID.
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	// Put writes the full document; the stored ID is always id.
	Put(ctx context.Context, id string, p *Profile) error
	ScanAll(ctx context.Context) ([]Profile, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// usernameIn reports whether any profile already uses username (exact match).
func usernameIn(profiles []Profile, username string) bool {
	for i := range profiles {
		if profiles[i].Username == username {
			return true
		}
	}
	return false
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
