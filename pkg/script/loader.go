package script

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Source describes where a transform script lives. Inline wins over File,
// File over Git.
type Source struct {
	Inline string     `json:"inline,omitempty" yaml:"inline,omitempty"`
	File   string     `json:"file,omitempty" yaml:"file,omitempty"`
	Git    *GitSource `json:"git,omitempty" yaml:"git,omitempty"`
}

type GitSource struct {
	Repository string `json:"repository" yaml:"repository"`
	Ref        string `json:"ref,omitempty" yaml:"ref,omitempty"`
	Path       string `json:"path" yaml:"path"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Loader resolves script sources to script text, caching git checkouts by
// repository digest.
type Loader struct {
	cacheDir string
}

func NewLoader(cacheDir string) *Loader {
	return &Loader{cacheDir: cacheDir}
}

func (l *Loader) Load(ctx context.Context, src Source) (string, error) {
	switch {
	case src.Inline != "":
		return src.Inline, nil
	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return "", fmt.Errorf("read script file: %w", err)
		}
		return string(data), nil
	case src.Git != nil:
		return l.loadFromGit(ctx, src.Git)
	default:
		return "", fmt.Errorf("script source is empty")
	}
}

func (l *Loader) loadFromGit(ctx context.Context, src *GitSource) (string, error) {
	digest := sha256.Sum256([]byte(src.Repository + "@" + src.Ref))
	dir := filepath.Join(l.cacheDir, fmt.Sprintf("%x", digest[:8]))

	var auth *githttp.BasicAuth
	if src.Username != "" {
		auth = &githttp.BasicAuth{Username: src.Username, Password: src.Password}
	}

	repo, err := git.PlainOpen(dir)
	if err == git.ErrRepositoryNotExists {
		opts := &git.CloneOptions{URL: src.Repository, Depth: 1}
		if src.Ref != "" {
			opts.ReferenceName = plumbing.ReferenceName(src.Ref)
		}
		if auth != nil {
			opts.Auth = auth
		}
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		return "", fmt.Errorf("open script repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("script repository worktree: %w", err)
	}
	pullOpts := &git.PullOptions{Depth: 1}
	if auth != nil {
		pullOpts.Auth = auth
	}
	if err := wt.PullContext(ctx, pullOpts); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("pull script repository: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, src.Path))
	if err != nil {
		return "", fmt.Errorf("read script from checkout: %w", err)
	}
	return string(data), nil
}
