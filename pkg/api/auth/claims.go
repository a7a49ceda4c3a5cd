// Package auth provides JWT token generation and validation for the Lode
// API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/lodehq/lode/pkg/asset"
)

// Claims are the JWT claims carried by an access token: the authenticated
// user's identity, their branch, and the permissions snapshot taken at login.
type Claims struct {
	jwt.RegisteredClaims

	Username    string   `json:"username"`
	Branch      string   `json:"branch"`
	Permissions []string `json:"permissions"`
}

// IsAdmin reports whether the claims carry the admin permission.
func (c *Claims) IsAdmin() bool {
	for _, p := range c.Permissions {
		if p == asset.PermAdmin {
			return true
		}
	}
	return false
}
