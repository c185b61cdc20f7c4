package telemetry

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWritesLogFileAndRegistersMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thalamus.log")
	tel, err := New(path, logrus.InfoLevel)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tel.Close()

	tel.Component("test").Info("hello")

	mfs, err := tel.Registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		found[mf.GetName()] = true
	}
	for _, want := range []string{
		"thalamus_node_count",
		"thalamus_rpc_streams",
		"thalamus_dropped_jobs_total",
		"thalamus_fatal_node_errors_total",
	} {
		if !found[want] {
			t.Fatalf("expected metric %s to be registered", want)
		}
	}
}

func TestNewWithoutLogPathUsesStderrOnly(t *testing.T) {
	tel, err := New("", logrus.InfoLevel)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tel.Close()
	tel.Component("test").Info("no file configured")
}
