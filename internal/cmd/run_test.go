package cmd

import "testing"

func TestRunCommand_AllFlagsExist(t *testing.T) {
	// given
	root := NewRootCommand()
	runCmd, _, err := root.Find([]string{"run"})
	if err != nil {
		t.Fatalf("find run command: %v", err)
	}

	// then
	for _, name := range []string{"id", "max-parallel", "poll", "cleanup-on-fail", "dirty-run", "follow"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

func TestRunCommand_IDAndPollAreMutuallyExclusive(t *testing.T) {
	// given
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "run", "--id", "T-001", "--poll", "5")

	// then
	if err == nil {
		t.Fatal("expected --id and --poll to be rejected together")
	}
}

func TestRunCommand_BarePollUsesDefaultInterval(t *testing.T) {
	// given
	root := NewRootCommand()
	runCmd, _, err := root.Find([]string{"run"})
	if err != nil {
		t.Fatalf("find run command: %v", err)
	}

	// then: --poll with no value must fall back to NoOptDefVal, not an error
	f := runCmd.Flags().Lookup("poll")
	if f == nil {
		t.Fatal("--poll flag not found")
	}
	if f.NoOptDefVal == "" {
		t.Error("--poll should declare a NoOptDefVal so a bare --poll is legal")
	}
}

func TestRunCommand_UnknownIDFailsFast(t *testing.T) {
	// given: an empty queue, so --id refers to nothing
	queueRoot := t.TempDir()

	// when
	_, err := execSisifo(t, queueRoot, "run", "--id", "T-GHOST")

	// then
	if err == nil {
		t.Fatal("expected run --id against an unknown task to fail")
	}
}
