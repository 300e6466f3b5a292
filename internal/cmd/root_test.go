package cmd

import (
	"bytes"
	"testing"
)

func TestNewRootCommand_Use(t *testing.T) {
	// given / when
	cmd := NewRootCommand()

	// then
	if cmd.Use != "sisifo" {
		t.Errorf("Use = %q, want %q", cmd.Use, "sisifo")
	}
}

func TestNewRootCommand_PersistentFlags(t *testing.T) {
	// given
	cmd := NewRootCommand()

	for _, name := range []string{"queue-root", "log-level", "log-json"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not found", name)
		}
	}
}

func TestNewRootCommand_HasAllSubcommands(t *testing.T) {
	// given
	cmd := NewRootCommand()

	// when
	subs := cmd.Commands()

	// then
	names := make(map[string]bool)
	for _, s := range subs {
		names[s.Name()] = true
	}
	want := []string{
		"add", "status", "remove", "cancel", "retry",
		"approve", "run", "review", "cleanup", "build-image",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestNewRootCommand_Version(t *testing.T) {
	// given
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	// when
	err := cmd.Execute()

	// then
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
