package dsn

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	legacyPostgresScheme    = "postgres://"
	canonicalPostgresScheme = "postgresql://"
)

var supportedScheme = regexp.MustCompile(`^(postgresql|mysql|sqlite)://`)

// Normalize rewrites the legacy postgres:// alias to postgresql://. Only the
// leading occurrence is replaced; the rest of the string is left untouched.
func Normalize(conn string) string {
	if strings.HasPrefix(conn, legacyPostgresScheme) {
		return strings.Replace(conn, legacyPostgresScheme, canonicalPostgresScheme, 1)
	}
	return conn
}

// DetectDialect classifies a connection string by its scheme.
func DetectDialect(conn string) Dialect {
	scheme := schemeOf(conn)
	switch {
	case strings.HasPrefix(scheme, "postgresql"):
		return PostgreSQL
	case strings.HasPrefix(scheme, "mysql"):
		return MySQL
	case strings.HasPrefix(scheme, "sqlite"):
		return SQLite
	default:
		return Unknown
	}
}

// Validate reports whether conn uses one of the supported schemes.
func Validate(conn string) error {
	if !supportedScheme.MatchString(conn) {
		return NewParseError(conn, "Unsupported database type", supportedHint(), ErrUnsupportedDialect)
	}
	return nil
}

// Parse normalizes and validates raw, returning the classified Info.
func Parse(raw string) (Info, error) {
	conn := Normalize(raw)
	if err := Validate(conn); err != nil {
		return Info{}, err
	}
	return Info{
		Dialect:  DetectDialect(conn),
		Conn:     conn,
		Original: raw,
	}, nil
}

func schemeOf(conn string) string {
	if u, err := url.Parse(conn); err == nil && u.Scheme != "" {
		return strings.ToLower(u.Scheme)
	}
	// url.Parse rejects some unescaped passwords; fall back to the text before "://".
	if idx := strings.Index(conn, "://"); idx > 0 {
		return strings.ToLower(conn[:idx])
	}
	return ""
}

func supportedHint() string {
	names := make([]string, len(Supported))
	for i, d := range Supported {
		names[i] = string(d)
	}
	return "Supported types: " + strings.Join(names, ", ")
}
