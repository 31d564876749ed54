package models

// Space is the listing collaborator's read-only view of a driveway.
type Space struct {
	ID              string `json:"id"`
	OwnerID         string `json:"ownerId"`
	BaseRatePerHour Money  `json:"baseRatePerHour"`
	Capacity        int    `json:"capacity"`
	Timezone        string `json:"timezone,omitempty"`
}

// UserProfile is the profile collaborator's contact view of a user.
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}
