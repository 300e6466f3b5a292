package cmd

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nelsonpires5/sisifo/internal/pipeline"
)

func TestNewAppResolvesRelativeQueueRoot(t *testing.T) {
	// given
	dir := t.TempDir()
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("queue-root", "", "")
	cmd.Flags().Set("queue-root", filepath.Join(dir, "queue"))

	// when
	a, err := newApp(cmd)

	// then
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	if !filepath.IsAbs(a.layout.Root) {
		t.Errorf("layout root = %q, want an absolute path", a.layout.Root)
	}
}

func TestNewProcessorFillsDefaultImage(t *testing.T) {
	// given
	dir := t.TempDir()
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("queue-root", "", "")
	cmd.Flags().Set("queue-root", filepath.Join(dir, "queue"))
	a, err := newApp(cmd)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}

	// when
	p := a.newProcessor(pipeline.Config{})

	// then
	if p == nil {
		t.Fatal("newProcessor returned nil")
	}
}
