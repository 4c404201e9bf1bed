package directory

import "time"

// GrantStatus is the display state of a grant at a point in time. Only
// Declined is stored; the rest derive from the date window.
type GrantStatus string

const (
	GrantPending  GrantStatus = "Pending"
	GrantActive   GrantStatus = "Active"
	GrantExpired  GrantStatus = "Expired"
	GrantDeclined GrantStatus = "Declined"
)

// GrantedAt reports whether the grant is effective at now. Decline
// dominates regardless of dates. An unset StartDate means the grant was
// never activated; an unset EndDate means the grant is indefinite. Both
// window boundaries are inclusive.
func (g Grant) GrantedAt(now time.Time) bool {
	if g.Decline {
		return false
	}
	if g.StartDate == nil || now.Before(*g.StartDate) {
		return false
	}
	if g.EndDate != nil && now.After(*g.EndDate) {
		return false
	}
	return true
}

// StatusAt derives the display state from the stored fields and the clock.
func (g Grant) StatusAt(now time.Time) GrantStatus {
	switch {
	case g.Decline:
		return GrantDeclined
	case g.StartDate == nil:
		return GrantPending
	case now.Before(*g.StartDate):
		return GrantPending
	case g.EndDate != nil && now.After(*g.EndDate):
		return GrantExpired
	default:
		return GrantActive
	}
}

// OpenAt reports whether the permission window covers now; equal-boundary
// instants are inside the window.
func (p Permission) OpenAt(now time.Time) bool {
	return !now.Before(p.StartTime) && !now.After(p.EndTime)
}

// ExpiredAt reports whether the session is stale. EnforceExpiry kills the
// session unconditionally. A zero ttl means no expiry is configured and
// sessions never age out.
func (s ServiceSession) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if s.EnforceExpiry {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return now.After(s.LastSeen.Add(ttl))
}
