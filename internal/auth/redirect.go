package auth

import "strings"

// isLocalPath reports whether path stays on this site, so it is safe as a
// post-login redirect target.
func isLocalPath(path string) bool {
	switch {
	case !strings.HasPrefix(path, "/"):
		return false
	case strings.HasPrefix(path, "//"): // protocol-relative
		return false
	case strings.Contains(path, "://"), strings.Contains(path, `\`):
		return false
	}
	return true
}

// sanitizeRedirectPath falls back to the landing page for anything off-site.
func sanitizeRedirectPath(path string) string {
	if !isLocalPath(path) {
		return "/"
	}
	return path
}
