package session

// User is the signed in dashboard user as returned by the login endpoint.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CollegeID string `json:"collegeId,omitempty"`
}

// Session is the auth-storage state. It is replaced as a whole, never patched
// field by field.
type Session struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}

	return s.User.ID
}

// Credentials are posted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPair is the body of the login and refresh endpoints. Both the bare form
// and the {success, data} envelope are accepted.
type tokenPair struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	User    *User      `json:"user"`
	Data    *tokenPair `json:"data"`
}

func (p tokenPair) unwrap() tokenPair {
	if p.Access == "" && p.Data != nil {
		return *p.Data
	}

	return p
}
