package dsn

import "regexp"

var (
	reDSNPass  = regexp.MustCompile(`(?i)(://)([^:/@]+):([^@]+)(@)`)
	rePassword = regexp.MustCompile(`(?i)(password|passwd|pwd)=([^&\s;]+)`)
	reAPIKey   = regexp.MustCompile(`(?i)(api[_-]?key|token|secret)=([^&\s;]+)`)
)

// Mask hides credentials embedded in connection strings and key=value pairs so
// the result is safe to log or echo back to clients.
func Mask(s string) string {
	if s == "" {
		return s
	}
	s = reDSNPass.ReplaceAllString(s, `$1$2:***$4`)
	s = rePassword.ReplaceAllString(s, `$1=***`)
	s = reAPIKey.ReplaceAllString(s, `$1=***`)
	return s
}
