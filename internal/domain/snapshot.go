package domain

// AuthSnapshot is a point-in-time view of "who is logged in" from one source:
// either the server-confirmed session state or the client-side auth cache.
type AuthSnapshot struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id,omitempty"`
	ProfileID       string `json:"profile_id,omitempty"`
}

// ConsistentWith reports whether two snapshots agree on the auth state:
// same authenticated flag and, when both are authenticated, the same user.
// Anything else is a major inconsistency and warrants a forced resync.
func (a AuthSnapshot) ConsistentWith(b AuthSnapshot) bool {
	if a.IsAuthenticated != b.IsAuthenticated {
		return false
	}
	if a.IsAuthenticated && a.UserID != b.UserID {
		return false
	}
	return true
}
