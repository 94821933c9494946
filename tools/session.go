package tools

// Session is a set of tools bound to one backing connection. A session is
// owned by a single query and closed exactly once; Close must be safe to
// call again.
type Session interface {
	Tools() []Tool
	Close() error
}
