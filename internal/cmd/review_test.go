package cmd

import "testing"

func TestReviewRequiresID(t *testing.T) {
	// given
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "review")

	// then
	if err == nil {
		t.Fatal("expected error when --id is not supplied")
	}
}

func TestReviewUnknownIDFails(t *testing.T) {
	// given
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "review", "--id", "T-GHOST")

	// then
	if err == nil {
		t.Fatal("expected error reviewing an unknown task id")
	}
}
