package session

// Credentials hold the identifier and secret of a pending handshake. The
// bytes are owned by the value and overwritten with zeros by Wipe; they
// are never formatted, logged or persisted. Wipe only reaches bytes the
// process still holds in slices; a caller that kept its own string copy
// has to drop it.
type Credentials struct {
	identifier []byte
	secret     []byte
}

func newCredentials(identifier, secret []byte) *Credentials {
	return &Credentials{
		identifier: append([]byte(nil), identifier...),
		secret:     append([]byte(nil), secret...),
	}
}

// Empty reports whether the credentials were wiped or never set.
func (c *Credentials) Empty() bool {
	return c == nil || (len(c.identifier) == 0 && len(c.secret) == 0)
}

// Wipe zeroes both values and releases them.
func (c *Credentials) Wipe() {
	if c == nil {
		return
	}
	wipe(c.identifier)
	wipe(c.secret)
	c.identifier = nil
	c.secret = nil
}

// clone returns copies for a single transport call. The caller wipes
// them once the call returns.
func (c *Credentials) clone() (identifier, secret []byte) {
	return append([]byte(nil), c.identifier...), append([]byte(nil), c.secret...)
}

func (c *Credentials) String() string   { return "[redacted]" }
func (c *Credentials) GoString() string { return "session.Credentials{[redacted]}" }

func wipe(b []byte) {
	clear(b)
}

// MarshalJSON keeps credentials out of structured logs and exports.
func (c *Credentials) MarshalJSON() ([]byte, error) {
	return []byte(`"[redacted]"`), nil
}
