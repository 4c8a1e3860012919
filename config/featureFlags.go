package config

import (
	"os"
	"strings"
)

// ApprovalNotificationsEnabled gates the approval-request email sent on order
// creation. On by default; dev/test environments with no mailer set
// APPROVAL_NOTIFICATIONS=false to skip the side effect (the order itself is
// still created either way).
func ApprovalNotificationsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("APPROVAL_NOTIFICATIONS")))
	if v == "" {
		return true
	}
	return v != "0" && v != "false" && v != "no" && v != "n"
}
