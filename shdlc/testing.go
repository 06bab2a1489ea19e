package shdlc

// InjectPortForTesting places an already-open Port directly on a
// Transport, bypassing Open and the real serial driver, as if Open had
// already succeeded. It exists so packages built on top of shdlc (e.g.
// sps30) can drive an Engine against a scripted Port double without
// reaching into shdlc's unexported fields.
func InjectPortForTesting(t *Transport, p Port) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.port = p
}
