// Package secrets resolves named credentials such as the weather API key and
// chat webhook URLs at run time, and keeps their values out of logs.
package secrets

const redacted = "***REDACTED***"

var redactedJSON = []byte(`"` + redacted + `"`)

// Secret holds a credential value. Every formatting and encoding path prints a
// placeholder; only Reveal returns the value.
type Secret struct {
	value string
}

// New wraps a raw value.
func New(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the raw value. Call it only at the point of use, such as
// building a request URL.
func (s Secret) Reveal() string {
	return s.value
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

// GoString keeps %#v from printing the struct field.
func (s Secret) GoString() string {
	return redacted
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Decode lets envconfig populate a Secret from an environment variable.
func (s *Secret) Decode(value string) error {
	s.value = value
	return nil
}
