package models

import "net/url"

// Credentials identify an account on an Xtream-style provider.
// Immutable once supplied; every remote URL for a session is built from them.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// PlaylistURL builds the extended-M3U playlist endpoint for these credentials.
func (c Credentials) PlaylistURL() string {
	q := url.Values{}
	q.Set("username", c.Username)
	q.Set("password", c.Password)
	q.Set("type", "m3u_plus")
	q.Set("output", "ts")
	return c.Server + "/get.php?" + q.Encode()
}

// AccountURL builds the player_api.php account-info endpoint.
func (c Credentials) AccountURL() string {
	q := url.Values{}
	q.Set("username", c.Username)
	q.Set("password", c.Password)
	return c.Server + "/player_api.php?" + q.Encode()
}
