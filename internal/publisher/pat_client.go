package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// PATClient implements Client against a GitHub-compatible REST API using a
// personal access token. It is the default publisher binding.
type PATClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPATClient creates a token-authenticated client against baseURL (the
// host's REST API root, e.g. https://api.github.com).
func NewPATClient(baseURL string) *PATClient {
	return &PATClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *PATClient) ValidateCredentials(ctx context.Context, creds Credentials) error {
	var user struct {
		Login string `json:"login"`
	}
	if err := c.get(ctx, creds, "/user", &user); err != nil {
		return apperr.ProviderAuthError("repository host rejected the supplied credentials")
	}
	return nil
}

func (c *PATClient) CreateRepository(ctx context.Context, creds Credentials, name string, visibility Visibility) (*RemoteRepository, error) {
	body, err := json.Marshal(map[string]any{
		"name":    name,
		"private": visibility == VisibilityPrivate,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Name     string `json:"name"`
		HTMLURL  string `json:"html_url"`
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	status, err := c.post(ctx, creds, "/user/repos", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return nil, apperr.PublishNameConflict(name)
	}
	if status >= 400 {
		return nil, fmt.Errorf("create repository returned status %d", status)
	}

	owner := resp.Owner.Login
	if owner == "" {
		owner = creds.Username
	}
	return &RemoteRepository{Owner: owner, Name: resp.Name, URL: resp.HTMLURL}, nil
}

func (c *PATClient) RepositoryReady(ctx context.Context, creds Credentials, repo *RemoteRepository) error {
	endpoint := fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		var meta struct {
			Name string `json:"name"`
		}
		if err := c.get(ctx, creds, endpoint, &meta); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PushSnapshot builds a tree of blobs and creates a single commit against
// the repository's default branch via the Git Data API, so the upload
// lands as one commit rather than one commit per file.
func (c *PATClient) PushSnapshot(ctx context.Context, creds Credentials, repo *RemoteRepository, snap *Snapshot) (string, error) {
	repoPath := fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name)

	var refInfo struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	var baseTreeSHA, parentSHA string
	if _, err := c.getStatus(ctx, creds, repoPath+"/git/ref/heads/main", &refInfo); err == nil {
		parentSHA = refInfo.Object.SHA
		var commit struct {
			Tree struct {
				SHA string `json:"sha"`
			} `json:"tree"`
		}
		if err := c.get(ctx, creds, repoPath+"/git/commits/"+parentSHA, &commit); err == nil {
			baseTreeSHA = commit.Tree.SHA
		}
	}

	files := snap.Files
	if len(snap.Readme) > 0 {
		files = append(files, ProjectFile{RelativePath: "README.md", Content: snap.Readme})
	}

	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	entries := make([]treeEntry, 0, len(files))
	for _, f := range files {
		blobBody, _ := json.Marshal(map[string]string{
			"content":  base64.StdEncoding.EncodeToString(f.Content),
			"encoding": "base64",
		})
		var blob struct {
			SHA string `json:"sha"`
		}
		if _, err := c.post(ctx, creds, repoPath+"/git/blobs", blobBody, &blob); err != nil {
			return "", apperr.ArtifactWriteFailed(f.RelativePath, err)
		}
		entries = append(entries, treeEntry{Path: f.RelativePath, Mode: "100644", Type: "blob", SHA: blob.SHA})
	}

	treeReq := map[string]any{"tree": entries}
	if baseTreeSHA != "" {
		treeReq["base_tree"] = baseTreeSHA
	}
	treeBody, _ := json.Marshal(treeReq)
	var tree struct {
		SHA string `json:"sha"`
	}
	if _, err := c.post(ctx, creds, repoPath+"/git/trees", treeBody, &tree); err != nil {
		return "", err
	}

	commitReq := map[string]any{
		"message": "agentflow: publish generated project",
		"tree":    tree.SHA,
	}
	if parentSHA != "" {
		commitReq["parents"] = []string{parentSHA}
	}
	commitBody, _ := json.Marshal(commitReq)
	var commit struct {
		SHA string `json:"sha"`
	}
	if _, err := c.post(ctx, creds, repoPath+"/git/commits", commitBody, &commit); err != nil {
		return "", err
	}

	refBody, _ := json.Marshal(map[string]any{"sha": commit.SHA, "force": true})
	refMethod := repoPath + "/git/refs/heads/main"
	if parentSHA == "" {
		refBody, _ = json.Marshal(map[string]any{"ref": "refs/heads/main", "sha": commit.SHA})
		if _, err := c.post(ctx, creds, repoPath+"/git/refs", refBody, nil); err != nil {
			return "", err
		}
	} else {
		if err := c.patch(ctx, creds, refMethod, refBody); err != nil {
			return "", err
		}
	}

	return commit.SHA, nil
}

func (c *PATClient) get(ctx context.Context, creds Credentials, endpoint string, out any) error {
	_, err := c.getStatus(ctx, creds, endpoint, out)
	return err
}

func (c *PATClient) getStatus(ctx context.Context, creds Credentials, endpoint string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperr.TransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("GET %s returned %d: %s", endpoint, resp.StatusCode, string(body))
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func (c *PATClient) post(ctx context.Context, creds Credentials, endpoint string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	c.setHeaders(req, creds)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperr.TransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusUnprocessableEntity {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("POST %s returned %d: %s", endpoint, resp.StatusCode, string(respBody))
	}
	if out != nil && resp.StatusCode < 400 {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func (c *PATClient) patch(ctx context.Context, creds Credentials, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req, creds)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.TransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("PATCH %s returned %d: %s", endpoint, resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *PATClient) setHeaders(req *http.Request, creds Credentials) {
	req.Header.Set("Authorization", "token "+creds.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}
