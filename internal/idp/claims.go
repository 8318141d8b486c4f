package idp

import "fmt"

// Claims is the schema-less user-info record returned by the provider's
// profile endpoint. Providers disagree on everything beyond the subject id,
// so access is by key with typed accessors only for the mandatory fields.
type Claims map[string]any

// String returns the claim as a string, rendering non-string scalars
// (JSON numbers, booleans) with their default formatting. Missing claims
// return the empty string.
func (c Claims) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Subject returns the mandatory subject identifier
func (c Claims) Subject() string {
	return c.String("sub")
}
