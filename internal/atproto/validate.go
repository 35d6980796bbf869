package atproto

import "regexp"

// Maximum lengths accepted by the validators. Values past these are rejected
// before the grammar is even checked.
const (
	maxDIDLength   = 2048
	maxATUriLength = 8192
	maxJWTLength   = 16384
)

var (
	didRegexp = regexp.MustCompile(`^did:[a-z]+:[A-Za-z0-9._:%-]*[A-Za-z0-9._-]$`)

	// at://<did-or-handle>(/<collection>/<rkey>)?
	atURIRegexp = regexp.MustCompile(
		`^at://` +
			`(did:[a-z]+:[A-Za-z0-9._:%-]*[A-Za-z0-9._-]` + // DID authority
			`|[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)+)` + // handle authority
			`(/[A-Za-z0-9.]+/[A-Za-z0-9._~:-]+)?$`,
	)

	// Three dot-separated base64url segments. The final segment may be empty
	// (an unsigned JWT); real tokens are always signed but the server side
	// is not trusted to guarantee that.
	jwtRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)
)

// ValidateDID reports whether s is a syntactically valid DID. Every DID
// entering from the network passes through here before it is persisted or
// used to address a repo.
func ValidateDID(s string) bool {
	if s == "" || len(s) > maxDIDLength {
		return false
	}
	return didRegexp.MatchString(s)
}

// ValidateATUri reports whether s is a syntactically valid AT-URI.
func ValidateATUri(s string) bool {
	if s == "" || len(s) > maxATUriLength {
		return false
	}
	return atURIRegexp.MatchString(s)
}

// ValidateJWT reports whether s looks like a JWT-shaped bearer token. Tokens
// returned by the server are never trusted blindly; anything failing this
// check is treated the same as a failed call.
func ValidateJWT(s string) bool {
	if s == "" || len(s) > maxJWTLength {
		return false
	}
	return jwtRegexp.MatchString(s)
}
