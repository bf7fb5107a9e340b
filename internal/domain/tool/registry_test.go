package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/domain/tool"
)

type stubPlugin struct {
	desc tool.Descriptor
}

func (s *stubPlugin) Metadata() tool.Descriptor { return s.desc }

func (s *stubPlugin) Validate(ctx context.Context, in tool.Input) error { return nil }

func (s *stubPlugin) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	return &tool.Output{Name: "out.txt", Data: []byte("ok")}, nil
}

func (s *stubPlugin) Cleanup(paths ...string) {}

func newStub(name, version string) *stubPlugin {
	return &stubPlugin{desc: tool.Descriptor{Name: name, Category: "test", Version: version}}
}

func TestRegistry_LookupReturnsRegisteredPlugin(t *testing.T) {
	registry := tool.NewRegistry(zerolog.Nop())
	names := []string{"image-format-converter", "pdf-to-docx", "gpx-analyzer"}
	for _, name := range names {
		registry.Register(newStub(name, "1.0"))
	}

	for _, name := range names {
		plugin, ok := registry.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not found", name)
		}
		if got := plugin.Metadata().Name; got != name {
			t.Errorf("Metadata().Name = %q, want %q", got, name)
		}
	}

	if _, ok := registry.Lookup("does-not-exist"); ok {
		t.Error("Lookup of unknown tool should report not found")
	}
}

func TestRegistry_DuplicateNameLastWriteWins(t *testing.T) {
	registry := tool.NewRegistry(zerolog.Nop())
	registry.Register(newStub("image-format-converter", "1.0"))
	registry.Register(newStub("image-format-converter", "2.0"))

	plugin, ok := registry.Lookup("image-format-converter")
	if !ok {
		t.Fatal("tool not found after duplicate registration")
	}
	if got := plugin.Metadata().Version; got != "2.0" {
		t.Errorf("expected last registration to win, got version %q", got)
	}

	list := registry.List()
	if len(list) != 1 {
		t.Fatalf("List() returned %d descriptors, want 1", len(list))
	}
	seen := map[string]bool{}
	for _, desc := range list {
		if seen[desc.Name] {
			t.Errorf("List() contains duplicate name %q", desc.Name)
		}
		seen[desc.Name] = true
	}
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	registry := tool.NewRegistry(zerolog.Nop())
	names := []string{"c-tool", "a-tool", "b-tool"}
	for _, name := range names {
		registry.Register(newStub(name, "1.0"))
	}

	list := registry.List()
	if len(list) != len(names) {
		t.Fatalf("List() returned %d descriptors, want %d", len(list), len(names))
	}
	for i, desc := range list {
		if desc.Name != names[i] {
			t.Errorf("List()[%d] = %q, want %q", i, desc.Name, names[i])
		}
	}
}

func TestRegistry_DiscoverSkipsFailingFactory(t *testing.T) {
	registry := tool.NewRegistry(zerolog.Nop())
	registry.Discover([]tool.Candidate{
		{Name: "good-one", Factory: func() (tool.Plugin, error) { return newStub("good-one", "1.0"), nil }},
		{Name: "broken", Factory: func() (tool.Plugin, error) { return nil, errors.New("missing codec") }},
		{Name: "good-two", Factory: func() (tool.Plugin, error) { return newStub("good-two", "1.0"), nil }},
	})

	if _, ok := registry.Lookup("good-one"); !ok {
		t.Error("candidate before the failing factory should be registered")
	}
	if _, ok := registry.Lookup("good-two"); !ok {
		t.Error("candidate after the failing factory should be registered")
	}
	if _, ok := registry.Lookup("broken"); ok {
		t.Error("failing factory must not be registered")
	}
}
