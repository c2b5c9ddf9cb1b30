package models

import "time"

// TokenSet is one scope's worth of trust cookies plus the instant they stop being honoured.
type TokenSet struct {
	ScopeKey    string            `json:"scope_key"`
	Values      map[string]string `json:"values"`
	ExpiresAt   time.Time         `json:"expires_at"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}

// Clone returns a deep copy so callers never share the Values map with the store.
func (t TokenSet) Clone() TokenSet {
	out := t
	out.Values = make(map[string]string, len(t.Values))
	for k, v := range t.Values {
		out.Values[k] = v
	}
	return out
}

// Get returns the named token value, or "" when absent.
func (t TokenSet) Get(name string) string {
	if t.Values == nil {
		return ""
	}
	return t.Values[name]
}

// Complete reports whether every required name carries a non-empty value.
func (t TokenSet) Complete(required []string) bool {
	if len(t.Values) == 0 {
		return false
	}
	for _, name := range required {
		if t.Values[name] == "" {
			return false
		}
	}
	return true
}

// Missing lists the required names that are absent or empty.
func (t TokenSet) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if t.Values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// WithExpiry returns a copy whose expiry moved to expiresAt.
func (t TokenSet) WithExpiry(expiresAt, refreshedAt time.Time) TokenSet {
	out := t.Clone()
	out.ExpiresAt = expiresAt
	out.RefreshedAt = refreshedAt
	return out
}
