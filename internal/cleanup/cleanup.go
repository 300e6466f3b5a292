// Package cleanup implements spec.md §4.9: removing containers, worktrees,
// error files, and per-attempt sandboxes for completed or cancelled tasks,
// and clearing their runtime-handle fields.
package cleanup

import (
	"context"
	"os"

	"github.com/nelsonpires5/sisifo/internal/containerrt"
	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/gitrt"
	"github.com/nelsonpires5/sisifo/internal/logging"
	"github.com/nelsonpires5/sisifo/internal/paths"
	"github.com/nelsonpires5/sisifo/internal/store"
)

// Runner performs cleanup against one store/layout/adapter set.
type Runner struct {
	store      *store.Store
	layout     *paths.Layout
	git        *gitrt.Adapter
	containers *containerrt.Adapter
}

// New returns a Runner.
func New(st *store.Store, layout *paths.Layout, git *gitrt.Adapter, containers *containerrt.Adapter) *Runner {
	return &Runner{store: st, layout: layout, git: git, containers: containers}
}

// Warning is a non-fatal sub-step failure collected during One.
type Warning struct {
	Step string
	Err  error
}

// One cleans up a single record. keepWorktree, when true, skips worktree
// removal. Sub-step failures are collected as warnings and do not abort
// subsequent steps (spec.md §4.9).
func (r *Runner) One(ctx context.Context, record *core.TaskRecord, keepWorktree bool) []Warning {
	var warnings []Warning

	if record.ID != "" {
		prefix := core.TaskContainerPrefix(record.ID)
		if _, err := r.containers.CleanupTaskContainers(ctx, record.ID, prefix); err != nil {
			warnings = append(warnings, Warning{Step: "containers", Err: err})
		}
	}

	if !keepWorktree && record.WorktreePath != "" {
		if err := r.git.RemoveWorktree(ctx, record.Repo, record.WorktreePath, true, false); err != nil {
			warnings = append(warnings, Warning{Step: "worktree", Err: err})
		}
	}

	if record.ErrorFile != "" {
		if err := os.Remove(record.ErrorFile); err != nil && !os.IsNotExist(err) {
			warnings = append(warnings, Warning{Step: "error_file", Err: err})
		}
	}

	sandboxRoot := r.layout.TaskOpencodeDir(record.ID)
	if err := os.RemoveAll(sandboxRoot); err != nil {
		warnings = append(warnings, Warning{Step: "sandbox", Err: err})
	}

	_, err := r.store.Update(record.ID, func(rec *core.TaskRecord) {
		rec.Branch = ""
		rec.WorktreePath = ""
		rec.ClearRuntimeHandles()
	})
	if err != nil {
		warnings = append(warnings, Warning{Step: "record", Err: err})
	}

	for _, w := range warnings {
		logging.Warnf("cleanup %s: step %s: %v", record.ID, w.Step, w.Err)
	}
	return warnings
}

// Sweep runs One over every record matching the given status filter
// (typically done and/or cancelled).
func (r *Runner) Sweep(ctx context.Context, statuses []core.Status, keepWorktree bool) (map[string][]Warning, error) {
	all, err := r.store.List()
	if err != nil {
		return nil, err
	}
	wanted := map[core.Status]bool{}
	for _, s := range statuses {
		wanted[s] = true
	}

	results := map[string][]Warning{}
	swept := 0
	for _, rec := range all {
		if !wanted[rec.Status] {
			continue
		}
		swept++
		if warnings := r.One(ctx, rec, keepWorktree); len(warnings) > 0 {
			results[rec.ID] = warnings
		}
	}
	logging.Infof("cleanup: swept %d record(s), %d with warnings", swept, len(results))
	return results, nil
}
