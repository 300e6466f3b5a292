package cmd

import (
	"testing"
)

func TestRemoveDeletesATodoRecord(t *testing.T) {
	// given
	queueRoot := t.TempDir()
	repo := testRepo(t)
	if _, err := execSisifo(t, queueRoot, "add", "--id", "T-001", "--repo", repo, "--task", "a"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// when
	if _, err := execSisifo(t, queueRoot, "remove", "--id", "T-001"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	// then
	_, err := execSisifo(t, queueRoot, "status", "--id", "T-001")
	if err == nil {
		t.Fatal("expected status to fail after removal")
	}
}

func TestRemoveUnknownIDFails(t *testing.T) {
	// given
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "remove", "--id", "T-GHOST")

	// then
	if err == nil {
		t.Fatal("expected error removing an unknown id")
	}
}

func TestRemoveRequiresID(t *testing.T) {
	// given
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "remove")

	// then
	if err == nil {
		t.Fatal("expected error when --id is not supplied")
	}
}
