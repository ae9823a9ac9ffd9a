package catalog

import "strings"

// SecureURL upgrades a plain-http URL to https before persistence. Values
// that are empty or already secure pass through unchanged.
func SecureURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") {
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}
