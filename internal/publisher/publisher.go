// Package publisher uploads a finished project tree to a remote Git hosting
// service as a new repository, per the workflow's explicit publish request.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kandev/agentflow/internal/common/apperr"
	"github.com/kandev/agentflow/internal/common/logger"
)

// Credentials is the opaque token + username pair a publish request carries.
// Both fields are trimmed at ingestion (see config.trimCredentials and the
// publish handler's request binding) since
// trailing whitespace on a stored username has previously corrupted
// constructed repository URLs.
type Credentials struct {
	Token    string
	Username string
}

// Visibility selects whether the created repository is public or private.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ProjectFile is one file pulled from the project store's snapshot.
type ProjectFile struct {
	RelativePath string
	Content      []byte
}

// Snapshot is the content the Project Store hands the publisher for upload.
type Snapshot struct {
	ProjectName string
	Files       []ProjectFile
	Readme      []byte // generated or rewritten README, attached alongside Files
}

// Result reports the outcome of a successful publish.
type Result struct {
	RepositoryURL string
	CommitID      string
	FilesPushed   int
}

// RemoteRepository is what a Client reports back after creating a repo; Name
// is authoritative and may differ from the candidate name on conflict retry.
type RemoteRepository struct {
	Owner string
	Name  string
	URL   string
}

// Client is the narrow binding the Service drives. Two implementations
// satisfy it: a PAT-authenticated HTTP client and a CLI-shell-out client,
// selected by NewClient with a fallback chain — the same shape the teacher
// uses to pick between its gh-CLI and PAT-token GitHub clients.
type Client interface {
	// ValidateCredentials reports whether creds authenticate successfully.
	// Neither the engine nor the HTTP API calls it at workflow submission
	// time; a broken binding surfaces when Publish runs.
	ValidateCredentials(ctx context.Context, creds Credentials) error

	// CreateRepository creates a new remote repository with the given
	// candidate name and visibility. Returns apperr.PublishNameConflict
	// when the name is already taken.
	CreateRepository(ctx context.Context, creds Credentials, name string, visibility Visibility) (*RemoteRepository, error)

	// RepositoryReady polls until the repository is addressable, or
	// returns an error once ctx's deadline passes.
	RepositoryReady(ctx context.Context, creds Credentials, repo *RemoteRepository) error

	// PushSnapshot uploads every file in snap as a single commit to repo's
	// default branch and returns the resulting commit id.
	PushSnapshot(ctx context.Context, creds Credentials, repo *RemoteRepository, snap *Snapshot) (commitID string, err error)
}

// Service implements the publish(project_handle, credentials, visibility)
// contract (§4.5) against a pluggable Client binding.
type Service struct {
	client Client
	log    *logger.Logger
}

// NewService wraps a Client binding in the publish algorithm.
func NewService(client Client, log *logger.Logger) *Service {
	return &Service{client: client, log: log}
}

// readyTimeout bounds step 3 of the publish algorithm: waiting for the
// created repository to become addressable.
const readyTimeout = 10 * time.Second

// Publish runs the five-step publish algorithm from §4.5: derive a
// candidate name, create the remote repository (retrying once on a name
// conflict), wait for it to become addressable, then push the snapshot in
// one commit.
func (s *Service) Publish(ctx context.Context, snap *Snapshot, creds Credentials, visibility Visibility) (*Result, error) {
	if s.client == nil {
		return nil, apperr.PublishFailed("no repository publisher binding is configured", nil)
	}

	candidate := deriveRepoName(snap.ProjectName)

	repo, err := s.client.CreateRepository(ctx, creds, candidate, visibility)
	if err != nil {
		if apperrIsNameConflict(err) {
			retryName := candidate + "-" + strconv.FormatInt(time.Now().UnixNano()%100000, 10)
			s.log.Warn(fmt.Sprintf("repository name %q conflicted, retrying as %q", candidate, retryName))
			repo, err = s.client.CreateRepository(ctx, creds, retryName, visibility)
			if err != nil {
				return nil, apperr.PublishFailed("repository name conflict persisted after retry", err)
			}
		} else {
			return nil, apperr.PublishFailed("failed to create remote repository", err)
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := s.client.RepositoryReady(readyCtx, creds, repo); err != nil {
		return nil, apperr.PublishFailed("repository never became addressable", err)
	}

	commitID, err := s.client.PushSnapshot(ctx, creds, repo, snap)
	if err != nil {
		// The repository is left as-is on partial upload failure (§4.5 step 5).
		return nil, apperr.PublishFailed("failed to push project snapshot", err)
	}

	return &Result{
		RepositoryURL: repo.URL,
		CommitID:      commitID,
		FilesPushed:   len(snap.Files),
	}, nil
}

func apperrIsNameConflict(err error) bool {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return ae.Code == apperr.CodePublishNameConflict
	}
	return false
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// deriveRepoName lowercases the project name, collapses runs of
// non-alphanumeric characters to a single hyphen, trims leading/trailing
// hyphens, and bounds the result to 80 characters (§4.5 step 1).
func deriveRepoName(projectName string) string {
	name := strings.ToLower(strings.TrimSpace(projectName))
	name = nonAlphanumeric.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = "agentflow-project"
	}
	if len(name) > 80 {
		name = strings.Trim(name[:80], "-")
	}
	return name
}
