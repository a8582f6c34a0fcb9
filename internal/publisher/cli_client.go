package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// CLIClient implements Client by shelling out to a locally installed hosting
// CLI (e.g. `gh`) for repository creation and to `git` for the push, for
// environments that authenticate through the CLI's own session rather than
// a raw token passed to this process.
type CLIClient struct {
	bin string // "gh"
}

// NewCLIClient creates a CLI-backed client. bin is the executable name to
// invoke ("gh").
func NewCLIClient(bin string) *CLIClient {
	return &CLIClient{bin: bin}
}

// CLIAvailable reports whether the configured CLI binary is on PATH.
func CLIAvailable(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}

func (c *CLIClient) ValidateCredentials(ctx context.Context, _ Credentials) error {
	_, err := c.run(ctx, "auth", "status")
	if err != nil {
		return apperr.ProviderAuthError("hosting CLI is not authenticated: " + err.Error())
	}
	return nil
}

func (c *CLIClient) CreateRepository(ctx context.Context, creds Credentials, name string, visibility Visibility) (*RemoteRepository, error) {
	vis := "--public"
	if visibility == VisibilityPrivate {
		vis = "--private"
	}
	fullName := name
	if creds.Username != "" {
		fullName = creds.Username + "/" + name
	}
	out, err := c.run(ctx, "repo", "create", fullName, vis)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") || strings.Contains(strings.ToLower(err.Error()), "name already exists") {
			return nil, apperr.PublishNameConflict(name)
		}
		return nil, fmt.Errorf("create repository via CLI: %w", err)
	}
	_ = out

	var view struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	viewOut, err := c.run(ctx, "repo", "view", fullName, "--json", "owner,name,url")
	if err != nil {
		return nil, fmt.Errorf("view created repository: %w", err)
	}
	if err := json.Unmarshal([]byte(viewOut), &view); err != nil {
		return nil, fmt.Errorf("parse repository view: %w", err)
	}
	return &RemoteRepository{Owner: view.Owner.Login, Name: view.Name, URL: view.URL}, nil
}

func (c *CLIClient) RepositoryReady(ctx context.Context, _ Credentials, repo *RemoteRepository) error {
	fullName := repo.Owner + "/" + repo.Name
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := c.run(ctx, "repo", "view", fullName); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PushSnapshot materializes the snapshot into a temporary worktree and
// pushes it with a plain git commit, since the CLI offers no direct
// single-commit upload endpoint the way the Git Data API does.
func (c *CLIClient) PushSnapshot(ctx context.Context, _ Credentials, repo *RemoteRepository, snap *Snapshot) (string, error) {
	dir, err := os.MkdirTemp("", "agentflow-publish-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	files := snap.Files
	if len(snap.Readme) > 0 {
		files = append(files, ProjectFile{RelativePath: "README.md", Content: snap.Readme})
	}
	for _, f := range files {
		dest := filepath.Join(dir, filepath.FromSlash(f.RelativePath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", apperr.ArtifactWriteFailed(f.RelativePath, err)
		}
		if err := os.WriteFile(dest, f.Content, 0o644); err != nil {
			return "", apperr.ArtifactWriteFailed(f.RelativePath, err)
		}
	}

	steps := [][]string{
		{"git", "init", "-q"},
		{"git", "add", "-A"},
		{"git", "commit", "-q", "-m", "agentflow: publish generated project"},
		{"git", "branch", "-M", "main"},
		{"git", "remote", "add", "origin", repo.URL},
		{"git", "push", "-q", "-u", "origin", "main"},
	}
	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = dir
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s: %w: %s", strings.Join(step, " "), err, stderr.String())
		}
	}

	revOut, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("resolve pushed commit: %w", err)
	}
	return strings.TrimSpace(string(revOut)), nil
}

func (c *CLIClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w: %s", c.bin, args[0], err, stderr.String())
	}
	return stdout.String(), nil
}
