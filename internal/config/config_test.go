package config

import "testing"

func TestDefaultHasSaneValues(t *testing.T) {
	c := Default()
	if c.Port != 8899 {
		t.Fatalf("Port = %d, want 8899", c.Port)
	}
	if c.Timeout.Seconds() != 10 {
		t.Fatalf("Timeout = %v, want 10s", c.Timeout)
	}
}

func TestLoadBytesOverlaysDefaults(t *testing.T) {
	content := []byte(`
hostname: 0.0.0.0
port: 9000
num_workers: 4
`)
	c, err := LoadBytes(content)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if c.Hostname != "0.0.0.0" || c.Port != 9000 || c.NumWorkers != 4 {
		t.Fatalf("got %+v", c)
	}
	// Fields absent from content keep their defaults.
	if c.Backlog != 100 {
		t.Fatalf("Backlog = %d, want default 100", c.Backlog)
	}
}

func TestTLSMaterialCompleteRequiresAllFourFields(t *testing.T) {
	t1 := TLSMaterial{CACertFile: "a", CAKeyFile: "b", CASigningKeyFile: "c"}
	if t1.Complete() {
		t.Fatal("expected incomplete without CACertDir")
	}
	t2 := t1
	t2.CACertDir = "/tmp/certs"
	if !t2.Complete() {
		t.Fatal("expected complete with all four fields")
	}
}
