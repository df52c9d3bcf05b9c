package domain

// Student is a roster entry as exposed by the attendance backend
type Student struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name,omitempty"`
	PhotoURL   string `json:"photoUrl,omitempty"`
}
