package catalog

import (
	"fmt"
	"strings"
)

// sqlStringArray scans a Postgres text[] literal (e.g. {Horror,"Mystery
// & Thriller"}) coming back through the database/sql driver as text.
type sqlStringArray []string

func (a *sqlStringArray) Scan(src any) error {
	var literal string
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		literal = v
	case []byte:
		literal = string(v)
	default:
		return fmt.Errorf("cannot scan %T into string array", src)
	}
	parsed, err := parseTextArray(literal)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func parseTextArray(literal string) ([]string, error) {
	if !strings.HasPrefix(literal, "{") || !strings.HasSuffix(literal, "}") {
		return nil, fmt.Errorf("malformed array literal %q", literal)
	}
	body := literal[1 : len(literal)-1]
	if body == "" {
		return nil, nil
	}

	var (
		out      []string
		current  strings.Builder
		inQuotes bool
		escaped  bool
	)
	flush := func() {
		out = append(out, current.String())
		current.Reset()
	}
	for _, r := range body {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out, nil
}
