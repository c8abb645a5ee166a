package plugin

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/lucidwire/govy/internal/netconn"
)

type fakeCore struct{ name string }

func (f *fakeCore) Name() string                    { return f.name }
func (f *fakeCore) GetDescriptors() Descriptors      { return Descriptors{} }
func (f *fakeCore) ReadFromDescriptors(context.Context) error  { return nil }
func (f *fakeCore) WriteToDescriptors(context.Context) error   { return nil }
func (f *fakeCore) OnClientData(raw []byte) []byte   { return raw }
func (f *fakeCore) OnRequestComplete(context.Context) (Action, error) { return ActionContinue, nil }
func (f *fakeCore) OnResponseChunk(chunk []byte) []byte { return chunk }
func (f *fakeCore) OnClientConnectionClose()         {}

func TestRegistryBuildCoresAndLookup(t *testing.T) {
	r := NewRegistry()
	r.RegisterCore("fake", func(client *netconn.Conn, reg *Registry, logger *zap.Logger) Core {
		return &fakeCore{name: "fake"}
	})

	cores := r.BuildCores([]string{"fake", "missing"}, nil, zap.NewNop())
	if len(cores) != 1 {
		t.Fatalf("got %d cores, want 1 (missing factory should be skipped)", len(cores))
	}

	c, ok := r.LookupCore("fake")
	if !ok || c.Name() != "fake" {
		t.Fatal("expected to look up the built core by name")
	}
}
