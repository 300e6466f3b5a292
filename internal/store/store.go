// Package store implements the record store of spec.md §4.1: a
// newline-delimited JSON record file mutated under an OS-level advisory lock
// plus a process-local mutex, written via temp-file-then-atomic-rename.
package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/nelsonpires5/sisifo/internal/core"
	"github.com/nelsonpires5/sisifo/internal/metrics"
)

// Store is the record store. One Store should be constructed per process per
// tasks file; it is safe for concurrent use by multiple goroutines, and
// coordinates with other processes via the file lock.
type Store struct {
	path string

	// mu serializes every public method within this process. Public methods
	// never call one another while holding it (spec.md §9: the file lock —
	// and, here, this mutex too — is held solely at public-method
	// granularity to avoid self-deadlock), so a plain Mutex is sufficient;
	// no true reentrancy is required.
	mu sync.Mutex
}

// New returns a Store backed by tasksFile. The file and its parent directory
// must already exist (see paths.Layout.EnsureQueueDirs).
func New(tasksFile string) *Store {
	return &Store{path: tasksFile}
}

// withFileLock opens the record file, takes an exclusive OS advisory lock
// for the duration of fn, and releases it on every exit path — including a
// panic unwinding through fn, per spec.md §9.
func (s *Store) withFileLock(fn func(f *os.File) error) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("store: opening %s: %w", s.path, err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("store: locking %s: %w", s.path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	return fn(f)
}

func readAllRecords(f *os.File) ([]*core.TaskRecord, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, nil
	}

	var records []*core.TaskRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			return nil, fmt.Errorf("store: decoding record line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", f.Name(), err)
	}
	return records, nil
}

// writeAllRecords writes every record to a sibling temp file and atomically
// renames it over the original — spec.md §4.1: "Writes are never in place."
func writeAllRecords(path string, records []*core.TaskRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("store: refusing to write invalid record: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: creating temp file %s: %w", tmp, err)
	}

	writeErr := func() error {
		w := bufio.NewWriter(f)
		for _, r := range records {
			line, err := encodeRecord(r)
			if err != nil {
				return err
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr == nil {
		writeErr = f.Sync()
	}
	f.Close()
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: writing temp file: %w", writeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: renaming temp file into place: %w", err)
	}
	return nil
}

func encodeRecord(r *core.TaskRecord) ([]byte, error) {
	base, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func decodeRecord(line []byte) (*core.TaskRecord, error) {
	var rec core.TaskRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}
	known := knownFieldNames()
	for k, v := range raw {
		if known[k] {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = map[string]any{}
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return nil, err
		}
		rec.Extra[k] = val
	}
	return &rec, nil
}

func knownFieldNames() map[string]bool {
	return map[string]bool{
		"id": true, "repo": true, "base": true, "task_file": true, "status": true,
		"branch": true, "worktree_path": true, "container": true, "port": true,
		"session_id": true, "attempt": true, "error_file": true,
		"created_at": true, "updated_at": true,
		"opencode_attempt_dir": true, "opencode_config_dir": true, "opencode_data_dir": true,
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// recordClaimLatency reports the delay between a record entering todo
// (its updated_at at the time it was last written) and the moment it is
// claimed, for the sisifo.queue.claim_latency_seconds histogram.
func recordClaimLatency(becameTodoAt string) {
	at, err := time.Parse(time.RFC3339Nano, becameTodoAt)
	if err != nil {
		return
	}
	metrics.Current().RecordClaimLatency(context.Background(), time.Since(at))
}

// Add inserts record, failing with core.KindDuplicateID if its id already
// exists.
func (s *Store) Add(record *core.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.ID == record.ID {
				return core.New(core.KindDuplicateID, fmt.Sprintf("task id %q already exists", record.ID))
			}
		}
		if err := record.Validate(); err != nil {
			return err
		}
		records = append(records, record)
		return writeAllRecords(s.path, records)
	})
}

// Update merges patch fields into the existing record identified by id. If
// patch.Status differs from the current status, the transition must be
// legal. updated_at is always refreshed on success.
func (s *Store) Update(id string, patch func(r *core.TaskRecord)) (*core.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *core.TaskRecord
	err := s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		idx := indexOf(records, id)
		if idx == -1 {
			return core.New(core.KindUnknownTaskID, fmt.Sprintf("no task with id %q", id))
		}

		updated := records[idx].Clone()
		prevStatus := updated.Status
		patch(updated)
		if updated.Status != prevStatus {
			if !core.IsValidTransition(prevStatus, updated.Status) {
				return core.New(core.KindInvalidTransition,
					fmt.Sprintf("illegal transition %s -> %s for task %q", prevStatus, updated.Status, id))
			}
		}
		updated.UpdatedAt = now()
		if err := updated.Validate(); err != nil {
			return err
		}

		records[idx] = updated
		if err := writeAllRecords(s.path, records); err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// Remove deletes the record identified by id, failing with
// core.KindUnknownTaskID if absent or core.KindInvalidTransition if the
// record is actively running (spec.md §3.1: "removed only by an explicit
// remove (forbidden while status ∈ {planning, building})").
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		idx := indexOf(records, id)
		if idx == -1 {
			return core.New(core.KindUnknownTaskID, fmt.Sprintf("no task with id %q", id))
		}
		if st := records[idx].Status; st == core.StatusPlanning || st == core.StatusBuilding {
			return core.New(core.KindInvalidTransition, fmt.Sprintf("task %q cannot be removed while %s", id, st))
		}

		out := records[:0]
		for _, r := range records {
			if r.ID == id {
				continue
			}
			out = append(out, r)
		}
		return writeAllRecords(s.path, out)
	})
}

// Get returns the record identified by id, or (nil, nil) if absent.
func (s *Store) Get(id string) (*core.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *core.TaskRecord
	err := s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		if idx := indexOf(records, id); idx != -1 {
			result = records[idx]
		}
		return nil
	})
	return result, err
}

// List returns every record in file order.
func (s *Store) List() ([]*core.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*core.TaskRecord
	err := s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		result = records
		return nil
	})
	return result, err
}

// ListByStatus returns every record with the given status, in file order.
func (s *Store) ListByStatus(status core.Status) ([]*core.TaskRecord, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var result []*core.TaskRecord
	for _, r := range all {
		if r.Status == status {
			result = append(result, r)
		}
	}
	return result, nil
}

// ClaimFirstTodo atomically finds the first todo record in file order and
// transitions it to planning, returning the updated record. Returns (nil,
// nil) if no todo record exists.
func (s *Store) ClaimFirstTodo() (*core.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *core.TaskRecord
	err := s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		for i, r := range records {
			if r.Status != core.StatusTodo {
				continue
			}
			recordClaimLatency(r.UpdatedAt)
			claimed := r.Clone()
			claimed.Status = core.StatusPlanning
			claimed.UpdatedAt = now()
			if err := claimed.Validate(); err != nil {
				return err
			}
			records[i] = claimed
			if err := writeAllRecords(s.path, records); err != nil {
				return err
			}
			result = claimed
			return nil
		}
		return nil
	})
	return result, err
}

// ClaimTodoByID is ClaimFirstTodo targeted at a specific id: returns (nil,
// nil) if the record is missing or not currently todo.
func (s *Store) ClaimTodoByID(id string) (*core.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *core.TaskRecord
	err := s.withFileLock(func(f *os.File) error {
		records, err := readAllRecords(f)
		if err != nil {
			return err
		}
		idx := indexOf(records, id)
		if idx == -1 || records[idx].Status != core.StatusTodo {
			return nil
		}
		recordClaimLatency(records[idx].UpdatedAt)
		claimed := records[idx].Clone()
		claimed.Status = core.StatusPlanning
		claimed.UpdatedAt = now()
		if err := claimed.Validate(); err != nil {
			return err
		}
		records[idx] = claimed
		if err := writeAllRecords(s.path, records); err != nil {
			return err
		}
		result = claimed
		return nil
	})
	return result, err
}

// Clear empties the record file. Testing only.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(func(f *os.File) error {
		return writeAllRecords(s.path, nil)
	})
}

func indexOf(records []*core.TaskRecord, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
