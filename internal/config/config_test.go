package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cajigaslab/thalamus/internal/state"
)

func TestLoadBootstrapTreeYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.yaml")
	body := "nodes:\n  - name: wave1\n    type: WAVE\n    Running: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := LoadBootstrapTree(path)
	if err != nil {
		t.Fatalf("LoadBootstrapTree failed: %v", err)
	}
	if v.Kind() != state.KindMap {
		t.Fatalf("expected a map root, got kind %v", v.Kind())
	}
	m := v.Map()
	nodesVal := m.Get(state.StringKey("nodes"))
	if nodesVal.Kind() != state.KindList {
		t.Fatalf("expected nodes to be a list, got %v", nodesVal.Kind())
	}
	if nodesVal.List().Len() != 1 {
		t.Fatalf("expected one node entry, got %d", nodesVal.List().Len())
	}
}

func TestLoadBootstrapTreeJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootstrap.json")
	if err := os.WriteFile(path, []byte(`{"nodes":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := LoadBootstrapTree(path)
	if err != nil {
		t.Fatalf("LoadBootstrapTree failed: %v", err)
	}
	if v.Kind() != state.KindMap {
		t.Fatalf("expected a map root")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Port != 50050 {
		t.Fatalf("expected default port 50050, got %d", cfg.Port)
	}
}
