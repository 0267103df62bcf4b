package models

// Credential is a named secret or configuration value together with the
// outcome of its last validation.
type Credential struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	IsValid            bool   `json:"isValid"`
	LastValidatedError string `json:"lastValidatedError,omitempty"`
}

// Present reports whether the credential holds a value.
func (c Credential) Present() bool {
	return c.Value != ""
}
