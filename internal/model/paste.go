package model

// DefaultMeta is the language tag applied when a paste is created without one.
const DefaultMeta = "plaintext"

// Paste is the immutable record served by the API.
// It carries no persistence tags; every storage backend maps it on its own.
type Paste struct {
	ID      string `json:"id"`
	Content []byte `json:"-"`
	Meta    string `json:"meta"`
}
