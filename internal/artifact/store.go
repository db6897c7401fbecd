package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

const buildInfoDir = "build-info"

// Entry identifies one artifact file in a Store.
type Entry struct {
	ContractName string `json:"contractName"`
	SourceName   string `json:"sourceName"`
	Path         string `json:"path"`
}

// FullyQualifiedName returns "sourceName:contractName".
func (e Entry) FullyQualifiedName() string {
	return e.SourceName + ":" + e.ContractName
}

// Store reads a Hardhat artifacts directory
// (<dir>/<sourceName>/<ContractName>.json).
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the artifacts directory.
func (s *Store) Dir() string {
	return s.dir
}

// List enumerates all contract artifacts, sorted by fully qualified name.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.dir && d.Name() == buildInfoDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, filepath.Dir(p))
		if err != nil {
			return err
		}
		// Artifacts always live under their source file's directory.
		if rel == "." {
			return nil
		}
		entries = append(entries, Entry{
			ContractName: strings.TrimSuffix(name, ".json"),
			SourceName:   filepath.ToSlash(rel),
			Path:         p,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifacts directory %s does not exist (compile first)", apperrors.ErrArtifactNotFound, s.dir)
		}
		return nil, fmt.Errorf("scan artifacts %s: %w", s.dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FullyQualifiedName() < entries[j].FullyQualifiedName()
	})
	return entries, nil
}

// Find locates the artifact for name, which is either a bare contract name or
// a fully qualified "contracts/File.sol:Name".
func (s *Store) Find(name string) (Entry, error) {
	if source, contract, ok := splitQualified(name); ok {
		p := filepath.Join(s.dir, filepath.FromSlash(source), contract+".json")
		if _, err := os.Stat(p); err != nil {
			return Entry{}, fmt.Errorf("%w: %s", apperrors.ErrArtifactNotFound, name)
		}
		return Entry{ContractName: contract, SourceName: source, Path: p}, nil
	}

	entries, err := s.List()
	if err != nil {
		return Entry{}, err
	}
	var matches []Entry
	for _, e := range entries {
		if e.ContractName == name {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %s in %s", apperrors.ErrArtifactNotFound, name, s.dir)
	case 1:
		return matches[0], nil
	default:
		fqns := make([]string, len(matches))
		for i, m := range matches {
			fqns[i] = m.FullyQualifiedName()
		}
		return Entry{}, fmt.Errorf("%w: %s matches %s", apperrors.ErrAmbiguousArtifact, name, strings.Join(fqns, ", "))
	}
}

// Load reads and decodes the artifact for name.
func (s *Store) Load(name string) (*ContractArtifact, error) {
	entry, err := s.Find(name)
	if err != nil {
		return nil, err
	}
	return ReadFile(entry.Path)
}

// ReadFile decodes a single artifact file.
func ReadFile(p string) (*ContractArtifact, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrArtifactNotFound, err)
	}
	var a ContractArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode artifact %s: %v", apperrors.ErrConfiguration, p, err)
	}
	if a.ContractName == "" {
		a.ContractName = strings.TrimSuffix(filepath.Base(p), ".json")
	}
	a.path = p
	return &a, nil
}

// BuildInfo follows the artifact's .dbg.json pointer to its build-info file.
func (s *Store) BuildInfo(a *ContractArtifact) (*BuildInfo, error) {
	if a.path == "" {
		return nil, fmt.Errorf("%w: %s was not loaded from a store", apperrors.ErrArtifactNotFound, a.ContractName)
	}
	dbgPath := strings.TrimSuffix(a.path, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: debug file for %s: %v", apperrors.ErrArtifactNotFound, a.ContractName, err)
	}
	var dbg struct {
		BuildInfo string `json:"buildInfo"`
	}
	if err := json.Unmarshal(data, &dbg); err != nil || dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%w: %s has no build-info pointer", apperrors.ErrArtifactNotFound, dbgPath)
	}

	p := dbg.BuildInfo
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(dbgPath), filepath.FromSlash(p))
	}
	return ReadBuildInfo(p)
}

func splitQualified(name string) (source, contract string, ok bool) {
	i := strings.LastIndex(name, ":")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	source, contract = name[:i], name[i+1:]
	if path.Ext(source) != ".sol" {
		return "", "", false
	}
	return source, contract, true
}
