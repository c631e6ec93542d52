package valueobject

import "time"

// DefaultGroups is the group list carried by every session token.
var DefaultGroups = []string{"user"}

// ClaimSet is the decoded payload of a signed token. It is never stored.
type ClaimSet struct {
	ID        string
	Subject   string
	Groups    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasGroup reports whether group is among the claimed groups.
func (c *ClaimSet) HasGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}
