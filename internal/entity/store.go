package entity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrExists is returned by Create when an entity with the same id already
// exists somewhere in the searched state directories.
var ErrExists = errors.New("entity: already exists")

// ErrNotFound is returned by Get/Update/Transition when no entity matches.
var ErrNotFound = errors.New("entity: not found")

// ErrCorruption is raised when an on-disk entity's frontmatter state does
// not match the directory it was found in (spec invariant: the directory is
// the authoritative materialization of state).
type ErrCorruption struct {
	Path          string
	FrontmatterState string
	DirState      string
}

func (e *ErrCorruption) Error() string {
	return fmt.Sprintf("entity: corruption at %s: frontmatter state %q != directory state %q",
		e.Path, e.FrontmatterState, e.DirState)
}

// LockTimeout bounds how long Store waits to acquire a per-entity advisory
// lock before giving up.
var LockTimeout = 5 * time.Second

// StaleLockAge is the age at which a lock file is considered abandoned and
// is reaped on the next acquisition attempt.
var StaleLockAge = 2 * time.Minute

// cacheKey is the LRU index key: an entity id scoped by owning session (or
// "" for global), matching the spec's "(id, scope)"-indexed cache.
type cacheKey struct {
	ID    string
	Scope string
}

// DirLister resolves, for an entity Kind, every candidate state directory to
// search in priority order (e.g. global first, then each session scope).
type DirLister interface {
	StateDirs(kind Kind) []string
	DirForState(kind Kind, state string) string
}

// Store is EntityStore: frontmatter persistence with atomic writes,
// per-path advisory locking, and an in-process LRU index.
type Store struct {
	dirs  DirLister
	cache *lru.Cache[cacheKey, *Entity]
}

// NewStore builds a Store. cacheSize bounds the LRU index; 0 disables caching.
func NewStore(dirs DirLister, cacheSize int) (*Store, error) {
	s := &Store{dirs: dirs}
	if cacheSize > 0 {
		c, err := lru.New[cacheKey, *Entity](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating entity cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

func entityFilename(kind Kind, id string) string {
	if kind == KindQA {
		return id + ".md"
	}
	return id + ".md"
}

// Get finds an entity by id, searching every candidate state directory.
func (s *Store) Get(kind Kind, id string) (*Entity, error) {
	if s.cache != nil {
		if ent, ok := s.cache.Get(cacheKey{ID: id}); ok {
			return ent, nil
		}
	}
	for _, dir := range s.dirs.StateDirs(kind) {
		path := filepath.Join(dir, entityFilename(kind, id))
		data, err := os.ReadFile(path) //nolint:gosec // path built from configured state directories
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		ent, err := ParseDocument(kind, data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := s.checkDirConsistency(path, dir, ent); err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(cacheKey{ID: id, Scope: ent.SessionID}, ent)
		}
		return ent, nil
	}
	return nil, ErrNotFound
}

func (s *Store) checkDirConsistency(path, dir string, ent *Entity) error {
	expectDir := filepath.Clean(dir)
	if filepath.Clean(filepath.Dir(path)) != expectDir {
		return nil
	}
	dirState := filepath.Base(expectDir)
	if ent.State != "" && !strings.EqualFold(dirState, ent.State) && !s.sameLogicalState(ent.Kind, dirState, ent.State) {
		return &ErrCorruption{Path: path, FrontmatterState: ent.State, DirState: dirState}
	}
	return nil
}

// sameLogicalState allows the DirLister's configured state->dirname map to
// diverge from the bare semantic state name (e.g. state "wip" stored under
// a directory named "in-progress"): dirName matches when it is the base
// name of the directory DirForState resolves for state.
func (s *Store) sameLogicalState(kind Kind, dirName, state string) bool {
	return dirName == state || filepath.Base(s.dirs.DirForState(kind, state)) == dirName
}

// FindBySession returns every entity of kind owned by sessionID.
func (s *Store) FindBySession(kind Kind, sessionID string) ([]*Entity, error) {
	all, err := s.FindAll(kind)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(all))
	for _, e := range all {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindAll returns every entity of kind across every candidate state directory.
func (s *Store) FindAll(kind Kind) ([]*Entity, error) {
	var out []*Entity
	for _, dir := range s.dirs.StateDirs(kind) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			data, err := os.ReadFile(path) //nolint:gosec // path built from configured state directories
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			ent, err := ParseDocument(kind, data)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			if err := s.checkDirConsistency(path, dir, ent); err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	return out, nil
}

// Create writes a new entity. Fails with ErrExists if an entity with the
// same id is already present anywhere in the searched state directories.
func (s *Store) Create(ent *Entity) error {
	if _, err := s.Get(ent.Kind, ent.ID); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if ent.Metadata.CreatedAt.IsZero() {
		ent.Metadata.CreatedAt = time.Now().UTC()
	}
	ent.Metadata.UpdatedAt = ent.Metadata.CreatedAt
	return s.writeLocked(ent)
}

// Update replaces an entity's content in place (same state directory).
func (s *Store) Update(ent *Entity) error {
	ent.Metadata.UpdatedAt = time.Now().UTC()
	return s.writeLocked(ent)
}

// GetPath returns the absolute path an entity currently lives at, or
// ErrNotFound.
func (s *Store) GetPath(kind Kind, id string) (string, error) {
	for _, dir := range s.dirs.StateDirs(kind) {
		path := filepath.Join(dir, entityFilename(kind, id))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

func (s *Store) writeLocked(ent *Entity) error {
	dir := s.dirs.DirForState(ent.Kind, ent.State)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, entityFilename(ent.Kind, ent.ID))

	lockPath := path + ".lock"
	reapStaleLock(lockPath)
	fl := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring lock for %s", path)
	}
	defer fl.Unlock() //nolint:errcheck // best-effort unlock on a just-acquired flock

	data, err := RenderDocument(ent)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // entity documents are not secrets
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}

	if s.cache != nil {
		s.cache.Add(cacheKey{ID: ent.ID, Scope: ent.SessionID}, ent)
	}
	return nil
}

// MoveToState relocates an entity's file from its current directory to the
// directory for newState, invalidating any cached copy. Callers (the state
// machine) must have already updated ent.State before calling this.
func (s *Store) MoveToState(ent *Entity, oldState string) error {
	oldDir := s.dirs.DirForState(ent.Kind, oldState)
	oldPath := filepath.Join(oldDir, entityFilename(ent.Kind, ent.ID))

	if err := s.writeLocked(ent); err != nil {
		return err
	}

	newDir := s.dirs.DirForState(ent.Kind, ent.State)
	newPath := filepath.Join(newDir, entityFilename(ent.Kind, ent.ID))
	if oldPath != newPath {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing old-state file %s: %w", oldPath, err)
		}
	}
	if s.cache != nil {
		s.cache.Add(cacheKey{ID: ent.ID, Scope: ent.SessionID}, ent)
	}
	return nil
}

func reapStaleLock(lockPath string) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) > StaleLockAge {
		_ = os.Remove(lockPath)
	}
}
