// Package access decides whether a principal may reach a route of a given tier.
package access

import (
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
)

// Reason explains a denial
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonUnauthenticated       Reason = "unauthenticated"
	ReasonInsufficientPrivilege Reason = "insufficient_privilege"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns the domain error matching a denial, or nil when allowed
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonUnauthenticated:
		return services.ErrUnauthenticated
	case ReasonInsufficientPrivilege:
		return services.ErrInsufficientPrivilege
	default:
		return nil
	}
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Authorize reports whether p satisfies the required tier. A nil principal
// is an unauthenticated caller. It performs no I/O.
func Authorize(p *models.Principal, required models.Tier) Decision {
	if required <= models.TierPublic {
		return allow()
	}
	if p == nil {
		return deny(ReasonUnauthenticated)
	}
	if p.Tier() < required {
		return deny(ReasonInsufficientPrivilege)
	}
	return allow()
}
