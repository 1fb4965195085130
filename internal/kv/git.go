package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies who commits to a Git backend.
type Author struct {
	Name  string
	Email string
}

// Commit is one entry in the history of a key.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Git is a File backend whose directory is a git repository. Every Put and
// Delete is committed, so the history of the collection can be inspected
// with any git tool.
type Git struct {
	*File
	author Author
	repo   *gogit.Repository
	mu     sync.Mutex
}

// NewGit opens the repository at dir, initializing it if needed.
func NewGit(dir string, author Author) (*Git, error) {
	if author.Name == "" {
		author.Name = "gallery"
	}
	if author.Email == "" {
		author.Email = "gallery@localhost"
	}
	f, err := NewFile(dir)
	if err != nil {
		return nil, err
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = author.Name
		cfg.User.Email = author.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Git{File: f, author: author, repo: repo}, nil
}

// Put implements Backend and commits the new value.
func (g *Git) Put(ctx context.Context, key string, value []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.File.Put(ctx, key, value); err != nil {
		return err
	}
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(key); err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}
	return g.commitLocked(w, key, CommitMessage(ctx, "Update "+key))
}

// Delete implements Backend and commits the removal.
func (g *Git) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := os.Stat(g.Path(key)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	w, err := g.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Remove(key); err != nil {
		// Never committed: only the working copy has it.
		if err := g.File.Delete(ctx, key); err != nil {
			return err
		}
		return nil
	}
	return g.commitLocked(w, key, CommitMessage(ctx, "Delete "+key))
}

// commitLocked commits the staged change to key, if there is one.
func (g *Git) commitLocked(w *gogit.Worktree, key, msg string) error {
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	if fs, ok := status[key]; !ok || fs.Staging == gogit.Unmodified || fs.Staging == gogit.Untracked {
		return nil
	}
	sig := &object.Signature{Name: g.author.Name, Email: g.author.Email, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// History returns the most recent commits touching key, newest first. n is
// capped at 1000; n <= 0 means 1000.
func (g *Git) History(_ context.Context, key string, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	iter, err := g.repo.Log(&gogit.LogOptions{FileName: &key})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// No commit yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", key, err)
	}
	defer iter.Close()
	var commits []Commit
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history of %s: %w", key, err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return commits, nil
}
