// Package credentials resolves the GitHub token and model API key a query
// needs, either from explicit user input or from a privileged secret store.
//
// Resolution never writes process-wide state. The resolved Credentials
// value is threaded explicitly to the tool gateway and the provider factory.
package credentials

import "fmt"

// Default secret store keys.
const (
	DefaultHostTokenKey = "GITHUB_TOKEN"
	DefaultModelKeyKey  = "OPENAI_API_KEY"
)

// Mode selects where credentials come from.
type Mode int

const (
	// ModeUser takes credentials from values the user typed or passed as flags.
	ModeUser Mode = iota
	// ModePrivileged reads credentials from the configured secret store.
	ModePrivileged
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "user"
	case ModePrivileged:
		return "privileged"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Credentials holds the two secrets a query needs. Either may be empty.
type Credentials struct {
	HostToken   string
	ModelAPIKey string
}

// HasHostToken reports whether a GitHub token is present.
func (c Credentials) HasHostToken() bool { return c.HostToken != "" }

// HasModelAPIKey reports whether a model API key is present.
func (c Credentials) HasModelAPIKey() bool { return c.ModelAPIKey != "" }

// Complete reports whether both credentials are present.
func (c Credentials) Complete() bool {
	return c.HasHostToken() && c.HasModelAPIKey()
}

// Missing lists the credentials that are absent, in check order.
func (c Credentials) Missing() []string {
	var missing []string
	if !c.HasHostToken() {
		missing = append(missing, "GitHub token")
	}
	if !c.HasModelAPIKey() {
		missing = append(missing, "model API key")
	}
	return missing
}

// String implements fmt.Stringer without exposing secret values.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{HostToken:%s ModelAPIKey:%s}", redact(c.HostToken), redact(c.ModelAPIKey))
}

// GoString keeps %#v from printing secret values.
func (c Credentials) GoString() string {
	return c.String()
}

// Format routes every verb through String so %v, %+v and %s agree.
func (c Credentials) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('#') {
			fmt.Fprint(f, c.GoString())
			return
		}
		fmt.Fprint(f, c.String())
	default:
		fmt.Fprint(f, c.String())
	}
}

func redact(s string) string {
	if s == "" {
		return "<empty>"
	}
	return "<redacted>"
}

// Input carries the values a user supplied directly.
type Input struct {
	HostToken   string
	ModelAPIKey string
}

// Resolver produces Credentials for a query.
type Resolver struct {
	// Store is consulted in ModePrivileged. A nil store yields empty credentials.
	Store SecretStore
	// HostTokenKey names the GitHub token in Store. Defaults to GITHUB_TOKEN.
	HostTokenKey string
	// ModelKeyKey names the model API key in Store. Defaults to OPENAI_API_KEY.
	ModelKeyKey string
}

// Resolve returns the credentials for mode. It never fails: absent values
// are left empty and reported later by the caller.
func (r Resolver) Resolve(mode Mode, in Input) Credentials {
	if mode != ModePrivileged {
		return Credentials(in)
	}
	if r.Store == nil {
		return Credentials{}
	}
	hostKey := r.HostTokenKey
	if hostKey == "" {
		hostKey = DefaultHostTokenKey
	}
	modelKey := r.ModelKeyKey
	if modelKey == "" {
		modelKey = DefaultModelKeyKey
	}

	var creds Credentials
	if v, ok := r.Store.Lookup(hostKey); ok {
		creds.HostToken = v
	}
	if v, ok := r.Store.Lookup(modelKey); ok {
		creds.ModelAPIKey = v
	}
	return creds
}
