package models

// Session identifies the authenticated caller. It is built from a verified
// access token and handed to every repository call.
type Session struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	AccessToken string `json:"-"`
}

func (s Session) Valid() bool {
	return s.UserID != ""
}
