package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirSource reads capability definitions from a directory tree:
//
//	<root>/<profile>/tools/<name>.yaml
//	<root>/<profile>/extensions/<point>/<file>.yaml
//
// The "default" profile directory holds definitions visible to every
// scope. Both .yaml and .yml extensions are accepted.
type DirSource struct {
	root string
}

var defExtensions = []string{".yaml", ".yml"}

// NewDirSource creates a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{root: dir}
}

// Root returns the directory this source reads from.
func (s *DirSource) Root() string { return s.root }

// ListTools returns every tool definition for name visible to scope.
func (s *DirSource) ListTools(ctx context.Context, scope Scope, name string) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope = scope.Normalize()

	var defs []Definition
	for _, profile := range s.visibleProfiles(scope) {
		for _, ext := range defExtensions {
			path := filepath.Join(s.root, profile, "tools", name+ext)
			def, ok, err := s.readDefinition(path)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if def.Name == "" {
				def.Name = name
			}
			def.Kind = KindTool
			def.Profile = profile
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// ListExtensions returns every extension definition for point visible
// to scope, unordered.
func (s *DirSource) ListExtensions(ctx context.Context, scope Scope, point string) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope = scope.Normalize()

	var defs []Definition
	for _, profile := range s.visibleProfiles(scope) {
		dir := filepath.Join(s.root, profile, "extensions", point)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read extension dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !hasDefExtension(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			def, ok, err := s.readDefinition(path)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if def.Name == "" {
				def.Name = stem(e.Name())
			}
			def.Kind = KindExtension
			def.Profile = profile
			def.Point = point
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// ToolSignature fingerprints every path that could define name under
// scope. Any visible file appearing, disappearing, or changing its
// modification time changes the signature.
func (s *DirSource) ToolSignature(scope Scope, name string) string {
	scope = scope.Normalize()
	var parts []string
	for _, profile := range s.visibleProfiles(scope) {
		for _, ext := range defExtensions {
			parts = append(parts, statSig(filepath.Join(s.root, profile, "tools", name+ext)))
		}
	}
	return strings.Join(parts, "|")
}

// ExtensionSignature fingerprints the extension point directories
// visible to scope: newest modification time plus file count per dir.
func (s *DirSource) ExtensionSignature(scope Scope, point string) string {
	scope = scope.Normalize()
	var parts []string
	for _, profile := range s.visibleProfiles(scope) {
		parts = append(parts, dirSig(filepath.Join(s.root, profile, "extensions", point)))
	}
	return strings.Join(parts, "|")
}

// visibleProfiles returns the profiles whose definitions scope can see,
// most specific first.
func (s *DirSource) visibleProfiles(scope Scope) []string {
	if scope.Profile == DefaultProfile {
		return []string{DefaultProfile}
	}
	return []string{scope.Profile, DefaultProfile}
}

func (s *DirSource) readDefinition(path string) (Definition, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Definition{}, false, nil
		}
		return Definition{}, false, fmt.Errorf("read definition %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, false, fmt.Errorf("parse definition %s: %w", path, err)
	}
	if def.Runner == "" {
		return Definition{}, false, fmt.Errorf("definition %s: runner is required", path)
	}
	def.Source = path
	def.Signature = statSig(path)
	return def, true, nil
}

func hasDefExtension(name string) bool {
	for _, ext := range defExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// statSig returns a cheap fingerprint for a single file: its mtime in
// hex, or "-" if it does not exist.
func statSig(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return strconv.FormatInt(fi.ModTime().UnixNano(), 16)
}

// dirSig fingerprints a directory of definitions: newest mtime across
// its files and the file count. "-" if the directory does not exist.
func dirSig(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "-"
	}
	var newest int64
	var count int
	for _, e := range entries {
		if e.IsDir() || !hasDefExtension(e.Name()) {
			continue
		}
		if fi, err := e.Info(); err == nil {
			if mt := fi.ModTime().UnixNano(); mt > newest {
				newest = mt
			}
		}
		count++
	}
	return strconv.FormatInt(newest, 16) + ":" + strconv.Itoa(count)
}
