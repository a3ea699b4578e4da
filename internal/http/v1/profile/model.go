package profile

import (
	"github.com/janisto/chatmate/internal/platform/timeutil"
)

// Profile represents a user profile response.
type Profile struct {
	ID       string        `json:"id"                 doc:"Principal ID"         example:"Xk3p9ZqL2mN8"`
	Username string        `json:"username"           doc:"Unique username"      example:"alice_w"`
	Email    string        `json:"email"              doc:"Email address"        example:"alice@example.com"`
	ImageURL *string       `json:"imageUrl,omitempty" doc:"Profile image URL"    example:"https://example.com/a.png"`
	Bio      string        `json:"bio"                doc:"Bio"                  example:"Hey there! I'm using ChatMate🔥"`
	BioLink  *string       `json:"bioLink,omitempty"  doc:"Link shown under bio" example:"https://alice.example.com"`
	AddedAt  timeutil.Time `json:"addedAt"            doc:"Creation timestamp"   example:"2024-01-15T10:30:00.000Z"`
}

// Availability is the username check result. Message is empty when available.
type Availability struct {
	Available bool   `json:"available" doc:"True when the username may be used" example:"false"`
	Message   string `json:"message"   doc:"Reason it may not be used"          example:"Username is already in use."`
}
