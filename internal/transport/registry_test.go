package transport

import "testing"

func TestEndpointRegisterLookupPrune(t *testing.T) {
	e := &Endpoint{conns: make(map[string]*Connection)}
	conn := &Connection{}

	if _, ok := e.Lookup("10.0.0.5:4433"); ok {
		t.Fatal("unregistered address should not be found")
	}

	e.Register("10.0.0.5:4433", conn)
	got, ok := e.Lookup("10.0.0.5:4433")
	if !ok || got != conn {
		t.Fatal("expected to find the registered connection")
	}

	e.Prune("10.0.0.5:4433")
	if _, ok := e.Lookup("10.0.0.5:4433"); ok {
		t.Fatal("pruned address should no longer be found")
	}
}

// TestEndpointLookupBareIPPrefix exercises the §4.6 fallback: a Lookup by
// bare ip matches a registered "ip:port" entry on a prefix basis.
func TestEndpointLookupBareIPPrefix(t *testing.T) {
	e := &Endpoint{conns: make(map[string]*Connection)}
	conn := &Connection{}
	e.Register("10.0.0.5:4433", conn)

	got, ok := e.Lookup("10.0.0.5")
	if !ok || got != conn {
		t.Fatal("expected bare-ip lookup to match the registered ip:port entry")
	}

	if _, ok := e.Lookup("10.0.0.50"); ok {
		t.Fatal("bare-ip lookup should not match an unrelated address sharing a prefix of digits")
	}
}

func TestEndpointPruneAcceptsBareIP(t *testing.T) {
	e := &Endpoint{conns: make(map[string]*Connection)}
	e.Register("10.0.0.5:4433", &Connection{})

	e.Prune("10.0.0.5")
	if _, ok := e.Lookup("10.0.0.5:4433"); ok {
		t.Fatal("prune by bare ip should remove the matching ip:port entry")
	}
}

func TestEndpointConnectionsSnapshot(t *testing.T) {
	e := &Endpoint{conns: make(map[string]*Connection)}
	e.Register("10.0.0.5:4433", &Connection{})
	e.Register("10.0.0.6:4433", &Connection{})

	keys := e.Connections()
	if len(keys) != 2 {
		t.Fatalf("Connections() = %v, want 2 entries", keys)
	}
}
