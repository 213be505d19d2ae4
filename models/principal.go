package models

import (
	"fmt"
	"strings"
)

// Tier is a route's access requirement. Tiers form a total order:
// TierPublic < TierUser < TierStaff < TierAdmin.
type Tier int

const (
	TierPublic Tier = iota
	TierUser
	TierStaff
	TierAdmin
)

var tierNames = [...]string{"public", "user", "staff", "admin"}

// String returns the lowercase tier name
func (t Tier) String() string {
	if t < TierPublic || t > TierAdmin {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier parses public, user, staff or admin
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i), nil
		}
	}
	return TierPublic, fmt.Errorf("unknown tier %q", s)
}

// Principal is the authenticated identity attached to a request.
// It is built once per request and never modified after attachment.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
	IsStaff  bool   `json:"isStaff"`
}

// Tier returns the highest tier the principal attains.
// An admin attains staff and user as well.
func (p *Principal) Tier() Tier {
	switch {
	case p == nil:
		return TierPublic
	case p.IsAdmin:
		return TierAdmin
	case p.IsStaff:
		return TierStaff
	default:
		return TierUser
	}
}
