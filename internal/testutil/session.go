package testutil

// FixedSessionGenerator generates the same session id every time.
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with the same FixedSessionGenerator produces
// byte-identical traces.
//
// Unlike subscription.FixedSessions which returns ids in sequence, this
// generator always returns the same id.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	session string
}

// NewFixedSessionGenerator creates a new fixed session generator.
//
// The session is typically set in the scenario YAML:
//
//	session: "test-session-0001"
//
// If session is empty, Generate() returns "test-session-default".
func NewFixedSessionGenerator(session string) *FixedSessionGenerator {
	if session == "" {
		session = "test-session-default"
	}
	return &FixedSessionGenerator{session: session}
}

// Generate returns the fixed session id.
//
// Implements subscription.SessionGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.session
}
