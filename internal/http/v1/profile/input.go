package profile

// ProfileGetInput for GET /profile (no body needed)
type ProfileGetInput struct{}

// AvailabilityInput for GET /usernames/{username}/availability
type AvailabilityInput struct {
	Username string `path:"username" doc:"Candidate username" example:"alice_w"`
}
