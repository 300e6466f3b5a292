// Package taskfile reads and writes the human-authored task documents of
// spec.md §4.2: an optional "---"-delimited YAML header followed by a
// free-form markdown body.
package taskfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nelsonpires5/sisifo/internal/core"
)

// Error wraps a task-file parsing or writing failure.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("taskfile: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("taskfile: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(msg string, err error) *Error { return &Error{Message: msg, Err: err} }

// Frontmatter is the structured header of a task document.
type Frontmatter struct {
	ID           string
	Repo         string
	Base         string
	Branch       string
	WorktreePath string
}

var headerRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n?(.*)`)

// ParseFrontmatterLenient splits content into (header, body). It never fails
// on an absent header — only on a malformed delimiter pair or non-map YAML —
// matching original_source's parse_frontmatter_optional.
func ParseFrontmatterLenient(content string) (map[string]any, string, error) {
	m := headerRe.FindStringSubmatch(content)
	if m == nil {
		if strings.HasPrefix(content, "---") {
			return nil, "", newErr("frontmatter header has no closing --- delimiter", nil)
		}
		return map[string]any{}, content, nil
	}
	var data map[string]any
	if err := yaml.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil, "", newErr("malformed frontmatter YAML", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, m[2], nil
}

// ParseFrontmatter is the strict reader: it fails if no header block is
// present (matching original_source's parse_frontmatter, which requires a
// non-empty header dict).
func ParseFrontmatter(content string) (*Frontmatter, string, error) {
	data, body, err := ParseFrontmatterLenient(content)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", newErr("task file has no frontmatter header", nil)
	}
	fm, err := newFrontmatter(data)
	if err != nil {
		return nil, "", err
	}
	return fm, body, nil
}

func newFrontmatter(data map[string]any) (*Frontmatter, error) {
	id, _ := data["id"].(string)
	repoRaw, hasRepo := data["repo"].(string)
	if id == "" || !hasRepo || repoRaw == "" {
		return nil, newErr("frontmatter missing required key(s) id/repo", nil)
	}
	repo, err := ResolveRepoPath(repoRaw)
	if err != nil {
		return nil, err
	}
	base, _ := data["base"].(string)
	if base == "" {
		base = "main"
	}
	branch, _ := data["branch"].(string)
	worktreePath, _ := data["worktree_path"].(string)
	return &Frontmatter{ID: id, Repo: repo, Base: base, Branch: branch, WorktreePath: worktreePath}, nil
}

// ResolveRepoPath resolves an absolute repo path as-is; a bare name is
// resolved under ~/documents/repos/<name>. Fails if the resulting directory
// does not exist.
func ResolveRepoPath(repo string) (string, error) {
	var resolved string
	if filepath.IsAbs(repo) {
		resolved = filepath.Clean(repo)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", newErr("resolving home directory", err)
		}
		resolved = filepath.Join(home, "documents", "repos", repo)
	}
	fi, err := os.Stat(resolved)
	if err != nil || !fi.IsDir() {
		return "", newErr(fmt.Sprintf("resolved repo path %q does not exist", resolved), nil)
	}
	return resolved, nil
}

// CreateCanonicalTaskFile renders a task document with a deterministic
// header key order (id, repo, base, branch?, worktree_path?) followed by the
// body verbatim.
func CreateCanonicalTaskFile(taskID, repo, body, base, branch, worktreePath string) (string, error) {
	resolved, err := ResolveRepoPath(repo)
	if err != nil {
		return "", err
	}
	if base == "" {
		base = "main"
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(fmt.Sprintf("id: %s\n", taskID))
	b.WriteString(fmt.Sprintf("repo: %s\n", resolved))
	b.WriteString(fmt.Sprintf("base: %s\n", base))
	if branch != "" {
		b.WriteString(fmt.Sprintf("branch: %s\n", branch))
	}
	if worktreePath != "" {
		b.WriteString(fmt.Sprintf("worktree_path: %s\n", worktreePath))
	}
	b.WriteString("---\n")
	b.WriteString(body)
	return b.String(), nil
}

// WriteTaskFile writes content to tasksDir/<taskID>.md, rejecting a mismatch
// between taskID and the header's own id.
func WriteTaskFile(taskID, content, tasksDir string) (string, error) {
	fm, _, err := ParseFrontmatter(content)
	if err != nil {
		return "", err
	}
	if fm.ID != taskID {
		return "", newErr(fmt.Sprintf("frontmatter id %q does not match %q", fm.ID, taskID), nil)
	}
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return "", newErr("creating tasks dir", err)
	}
	path := filepath.Join(tasksDir, taskID+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", newErr("writing task file", err)
	}
	return path, nil
}

// ReadTaskFile reads and strictly parses the canonical task file for id.
func ReadTaskFile(taskID, tasksDir string) (*Frontmatter, string, error) {
	path := filepath.Join(tasksDir, taskID+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", newErr(fmt.Sprintf("reading %s", path), err)
	}
	return ParseFrontmatter(string(data))
}

// ReadBody reads path and returns only its body, tolerating the absence of a
// frontmatter header (lenient read) — used by the pipeline, which reads the
// canonical file's body on every setup/execute stage.
func ReadBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", newErr(fmt.Sprintf("reading %s", path), err)
	}
	_, body, err := ParseFrontmatterLenient(string(data))
	if err != nil {
		return "", err
	}
	return body, nil
}

// NormalizeFromFile builds a canonical task file from an arbitrary source
// file. Non-empty explicit arguments take precedence; the source's own
// frontmatter, when it parses strictly, fills in any of id/repo/base/branch/
// worktree_path left empty. If the source has no valid frontmatter, repo must
// be supplied explicitly and the whole source content becomes the body, with
// id derived from the filename when not supplied.
func NormalizeFromFile(sourcePath, taskID, repo, base, branch, worktreePath, tasksDir string) (string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", newErr(fmt.Sprintf("reading %s", sourcePath), err)
	}

	fm, body, parseErr := ParseFrontmatter(string(data))
	if parseErr == nil {
		if taskID == "" {
			taskID = fm.ID
		}
		if repo == "" {
			repo = fm.Repo
		}
		if base == "" {
			base = fm.Base
		}
		if branch == "" {
			branch = fm.Branch
		}
		if worktreePath == "" {
			worktreePath = fm.WorktreePath
		}
	} else {
		if repo == "" {
			return "", newErr("source file has no frontmatter; --repo is required", nil)
		}
		body = string(data)
		if taskID == "" {
			taskID = core.DeriveIDFromFilename(filepath.Base(sourcePath))
		}
	}

	content, err := CreateCanonicalTaskFile(taskID, repo, body, base, branch, worktreePath)
	if err != nil {
		return "", err
	}
	return WriteTaskFile(taskID, content, tasksDir)
}
