// Package knownfiles persists the map of deployed target paths to the
// content hash stencil last wrote there. The store is what makes re-runs
// idempotent: a target whose current hash matches its recorded hash is
// safe to overwrite without asking.
package knownfiles

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/logging"
	"github.com/arthur-debert/stencil/pkg/paths"
)

// Store holds two generations of path-to-hash records: "old" is what was
// loaded at the start of the run, "new" is what this run has written so
// far. Keys are normalized absolute paths, so one physical file is never
// tracked under two names.
type Store struct {
	path string
	old  map[string]string
	new  map[string]string
}

// Load reads the persisted store. A missing file starts an empty store;
// a file whose root is not a flat object of string hashes is a fatal
// load error.
func Load(path string) (*Store, error) {
	logger := logging.GetLogger("knownfiles")

	s := &Store{
		path: path,
		old:  make(map[string]string),
		new:  make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug().Str("path", path).Msg("store does not exist, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStoreLoad, "could not read known files store %s", path)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStoreLoad, "root level structure of %s is not an object", path)
	}

	for key, value := range raw {
		// Decode through a pointer so a JSON null is caught instead of
		// silently becoming an empty string.
		var hash *string
		if err := json.Unmarshal(value, &hash); err != nil || hash == nil {
			return nil, errors.Newf(errors.ErrStoreLoad, "hash for path %q is not a string", key)
		}
		s.old[NormalizePath(key)] = *hash
	}

	logger.Debug().Str("path", path).Int("entries", len(s.old)).Msg("store loaded")
	return s, nil
}

// Lookup returns the recorded hash for a path, preferring this run's
// writes over the loaded generation so same-run writes are immediately
// visible to later decisions.
func (s *Store) Lookup(path string) (string, bool) {
	key := NormalizePath(path)
	if hash, ok := s.new[key]; ok {
		return hash, true
	}
	hash, ok := s.old[key]
	return hash, ok
}

// WasWrittenThisRun reports whether this run already recorded a write to
// the path.
func (s *Store) WasWrittenThisRun(path string) bool {
	_, ok := s.new[NormalizePath(path)]
	return ok
}

// Update records a hash for a path in the current run's generation. The
// loaded generation is never mutated.
func (s *Store) Update(path, hash string) {
	s.new[NormalizePath(path)] = hash
}

// SaveIncremental persists the union of both generations, with this
// run's entries winning conflicts. Earlier completed targets survive a
// crash because every save replaces the file atomically.
func (s *Store) SaveIncremental() error {
	merged := make(map[string]string, len(s.old)+len(s.new))
	for k, v := range s.old {
		merged[k] = v
	}
	for k, v := range s.new {
		merged[k] = v
	}
	return s.save(merged)
}

// Finalize persists only this run's generation, deliberately dropping
// every entry the run did not touch. Call it exactly once, at the end of
// a complete run, after ForgottenPaths has been reported.
func (s *Store) Finalize() error {
	return s.save(s.new)
}

// ForgottenPaths returns the paths that were known at load time but not
// written this run, sorted. They will disappear from the store when
// Finalize runs.
func (s *Store) ForgottenPaths() []string {
	var forgotten []string
	for path := range s.old {
		if _, ok := s.new[path]; !ok {
			forgotten = append(forgotten, path)
		}
	}
	sort.Strings(forgotten)
	return forgotten
}

// save serializes the records and replaces the store file atomically:
// write to a temp sibling, then rename over the target. Any reader sees
// either the fully-old or the fully-new file.
func (s *Store) save(records map[string]string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreSave, "could not serialize known files")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrStoreSave, "could not create store directory for %s", s.path)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStoreSave, "could not write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, errors.ErrStoreSave, "could not replace %s", s.path)
	}

	return nil
}

// NormalizePath expands a leading tilde, makes the path absolute and
// resolves symlinks where the path exists. Paths that do not exist yet
// are still normalized lexically.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(paths.ExpandHome(path))
	if err != nil {
		return filepath.Clean(path)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}

	// The file may not exist yet; resolve as much of the parent chain
	// as possible so the key stays stable once the file is created.
	dir, base := filepath.Split(abs)
	if resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
		return filepath.Join(resolvedDir, base)
	}

	return abs
}
