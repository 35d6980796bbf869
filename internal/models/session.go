package models

// Session holds the bearer credentials for an authenticated PDS session.
// A session is either fully absent (both tokens empty) or fully present
// (both tokens valid); it is never persisted half-populated.
type Session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Present reports whether both tokens are set.
func (s *Session) Present() bool {
	return s.AccessJwt != "" && s.RefreshJwt != ""
}
