package middleware

// IsAdmin reports whether userID is the configured admin. A zero adminID
// disables admin access entirely.
func IsAdmin(adminID, userID int64) bool {
	return adminID != 0 && userID == adminID
}
