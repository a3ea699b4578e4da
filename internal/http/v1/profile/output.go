package profile

// ProfileGetOutput for GET /profile
type ProfileGetOutput struct {
	Body Profile
}

// AvailabilityOutput for GET /usernames/{username}/availability
type AvailabilityOutput struct {
	Body Availability
}
