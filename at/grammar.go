package at

// Grammar holds the final result codes that end a command exchange. A
// Grammar is immutable once built; the zero value never terminates.
type Grammar struct {
	success map[string]struct{}
	failure map[string]struct{}
}

var (
	// CommandGrammar terminates ordinary AT commands.
	CommandGrammar = NewGrammar(
		[]string{OK, Ready, NoChange},
		[]string{ERROR},
	)

	// DataSendGrammar terminates the payload phase of AT+CIPSEND, which
	// ends with SEND OK or SEND FAIL rather than OK.
	DataSendGrammar = NewGrammar(
		[]string{OK, Ready, NoChange, SendOK},
		[]string{ERROR, SendFail},
	)
)

// NewGrammar builds a Grammar from the given token lists. The lists are
// copied.
func NewGrammar(success, failure []string) Grammar {
	g := Grammar{
		success: make(map[string]struct{}, len(success)),
		failure: make(map[string]struct{}, len(failure)),
	}
	for _, t := range success {
		g.success[t] = struct{}{}
	}
	for _, t := range failure {
		g.failure[t] = struct{}{}
	}
	return g
}

// Classify matches a response line against the grammar. Only exact matches
// count: "OK " or "OK2" are Pending.
func (g Grammar) Classify(line string) Result {
	if line == "" {
		return Pending
	}
	if _, ok := g.success[line]; ok {
		return Success
	}
	if _, ok := g.failure[line]; ok {
		return Failure
	}
	return Pending
}

// IsZero reports whether the grammar has no tokens at all.
func (g Grammar) IsZero() bool {
	return len(g.success) == 0 && len(g.failure) == 0
}
