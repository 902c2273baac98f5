package entities

// Identity is the authenticated principal behind a session: a stable id
// obtained by verifying a phone number, plus the profile display name.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	PhoneNumber string `json:"phone_number"`
}

// Preferences are the persisted map visibility toggles. Missing values
// resolve to DefaultPreferences.
type Preferences struct {
	ShowNeedy      bool `json:"showNeedy"`
	ShowVolunteers bool `json:"showVolunteers"`
}

// DefaultPreferences returns the out-of-the-box toggles: needy markers on,
// volunteer markers off.
func DefaultPreferences() Preferences {
	return Preferences{ShowNeedy: true, ShowVolunteers: false}
}
