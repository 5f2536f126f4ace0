// Package docstore manages the VF configuration files on disk.
//
// Administrators drop documents into the config directory. A document that
// is admitted moves to the live directory (config dir + "_live"), which is
// what the daemon re-reads on restart. A rejected document is renamed with
// an ".error" suffix next to the original. Removing a live document is the
// durability boundary of a delete.
package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/newtron-network/vfd/pkg/util"
	"github.com/newtron-network/vfd/pkg/vfdoc"
)

// LiveSuffix is appended to the config directory to form the live
// directory.
const LiveSuffix = "_live"

// Store reads and relocates VF documents.
type Store struct {
	fs        afero.Fs
	configDir string
	keep      bool
}

// New creates a store rooted at configDir. When keep is set, deleted
// documents are moved back to configDir with a trailing "-" instead of
// being removed.
func New(fs afero.Fs, configDir string, keep bool) *Store {
	return &Store{fs: fs, configDir: filepath.Clean(configDir), keep: keep}
}

// ConfigDir returns the directory administrators drop documents into.
func (s *Store) ConfigDir() string { return s.configDir }

// LiveDir returns the directory holding admitted documents.
func (s *Store) LiveDir() string { return s.configDir + LiveSuffix }

// Init creates both directories if needed.
func (s *Store) Init() error {
	for _, d := range []string{s.configDir, s.LiveDir()} {
		if err := s.fs.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	return nil
}

// ResolveAdd turns an add request's resource into a path. Names without a
// slash are taken relative to the config directory.
func (s *Store) ResolveAdd(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return filepath.Join(s.configDir, name)
}

// ResolveDelete turns a delete request's resource into a path. Names
// without a slash are taken relative to the live directory.
func (s *Store) ResolveDelete(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return filepath.Join(s.LiveDir(), name)
}

// Load reads and decodes the document at path. The file owner becomes the
// document's Owner when the filesystem exposes it.
func (s *Store) Load(path string) (*vfdoc.Document, error) {
	fi, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %s: %w", path, err)
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %s: %w", path, err)
	}
	doc, err := vfdoc.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("unable to read or parse config file: %s: %w", path, err)
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		doc.Owner = int(st.Uid)
	}
	return doc, nil
}

// Commit moves an admitted document into the live directory and returns
// its new path. A document already in the live directory stays put.
func (s *Store) Commit(path string) (string, error) {
	if filepath.Dir(filepath.Clean(path)) == s.LiveDir() {
		return path, nil
	}
	target := filepath.Join(s.LiveDir(), filepath.Base(path))
	if err := s.move(path, target); err != nil {
		return "", err
	}
	util.WithComponent("docstore").Debugf("config file relocated from %s to %s", path, target)
	return target, nil
}

// Reject renames a document that failed admission to <base>.error in the
// config directory so it can be inspected.
func (s *Store) Reject(path string) string {
	target := filepath.Join(s.configDir, filepath.Base(path)+".error")
	if err := s.move(path, target); err != nil {
		util.WithComponent("docstore").Warnf("config file relocation from %s to %s failed: %v", path, target, err)
		return ""
	}
	return target
}

// Park moves a live document that could not be restored at startup back
// to the config directory with a "-" suffix, so it is neither live nor
// picked up as a new request.
func (s *Store) Park(path string) string {
	target := filepath.Join(s.configDir, filepath.Base(path)+"-")
	if err := s.move(path, target); err != nil {
		util.WithComponent("docstore").Warnf("unable to park %s: %v", path, err)
		return ""
	}
	return target
}

// Remove deletes a live document, or parks it in the config directory
// with a trailing "-" when the store keeps deleted documents.
func (s *Store) Remove(path string) error {
	log := util.WithComponent("docstore")
	if !s.keep {
		if err := s.fs.Remove(path); err != nil {
			return fmt.Errorf("unable to unlink config file: %s: %w", path, err)
		}
		log.Debugf("config file deleted: %s", path)
		return nil
	}
	target := filepath.Join(s.configDir, filepath.Base(path)+"-")
	if err := s.move(path, target); err != nil {
		log.Warnf("unable to move %s to %s, removing: %v", path, target, err)
		if rerr := s.fs.Remove(path); rerr != nil {
			return fmt.Errorf("unable to unlink config file: %s: %w", path, rerr)
		}
		return nil
	}
	log.Debugf("moved %s to %s", path, target)
	return nil
}

// LiveDocuments lists the *.json files in the live directory, sorted.
func (s *Store) LiveDocuments() ([]string, error) {
	matches, err := afero.Glob(s.fs, filepath.Join(s.LiveDir(), "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// move renames src to dst, falling back to copy and unlink when the rename
// crosses filesystems.
func (s *Store) move(src, dst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := s.fs.Rename(src, dst); err == nil {
		return nil
	}
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if fi, err := s.fs.Stat(src); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := afero.WriteFile(s.fs, dst, data, mode); err != nil {
		return err
	}
	return s.fs.Remove(src)
}
