// Package journal keeps an append-only record of successful deployments, one
// JSON file per target.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apesavax/wAvaxApes/internal/deployer"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = fmt.Errorf("%w: no recorded deployment", apperrors.ErrConfiguration)

// Record is one confirmed deployment.
type Record struct {
	ID         string    `json:"id"`
	DeployedAt time.Time `json:"deployedAt"`
	deployer.Result
	Args []string `json:"args,omitempty"`

	// VerifiedURL is set once the source was verified on an explorer.
	VerifiedURL string `json:"verifiedUrl,omitempty"`
}

// Journal stores records under a directory.
type Journal struct {
	dir     string
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

// Open creates the journal directory if needed.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{dir: dir, now: time.Now, entropy: newEntropy()}, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Append stores rec, assigning ID and DeployedAt when unset, and returns the
// stored copy.
func (j *Journal) Append(rec Record) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if rec.Target == "" {
		return Record{}, fmt.Errorf("journal record for %s has no target", rec.Contract)
	}
	if rec.DeployedAt.IsZero() {
		rec.DeployedAt = j.now().UTC()
	}
	if rec.ID == "" {
		rec.ID = j.newID(rec.DeployedAt)
	}

	records, err := j.read(rec.Target)
	if err != nil {
		return Record{}, err
	}
	records = append(records, rec)
	if err := j.write(rec.Target, records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the records of a target, oldest first. A target without a
// journal file has no records.
func (j *Journal) List(target string) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read(target)
}

// Targets returns the names of all targets with a journal file.
func (j *Journal) Targets() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the most recent record of contract on target. A bare name
// also matches records stored under its fully qualified name, and the other
// way round.
func (j *Journal) Latest(target, contract string) (Record, error) {
	records, err := j.List(target)
	if err != nil {
		return Record{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if sameContract(records[i].Contract, contract) {
			return records[i], nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s on %s", ErrNotFound, contract, target)
}

func sameContract(a, b string) bool {
	if a == b {
		return true
	}
	ia, ib := strings.LastIndex(a, ":"), strings.LastIndex(b, ":")
	switch {
	case ia >= 0 && ib < 0:
		return a[ia+1:] == b
	case ib >= 0 && ia < 0:
		return b[ib+1:] == a
	}
	return false
}

// MarkVerified sets VerifiedURL on the record with the given ID.
func (j *Journal) MarkVerified(target, id, url string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.read(target)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].VerifiedURL = url
			return j.write(target, records)
		}
	}
	return fmt.Errorf("%w: id %s on %s", ErrNotFound, id, target)
}

func (j *Journal) path(target string) (string, error) {
	if target == "" || target != filepath.Base(target) || strings.HasPrefix(target, ".") {
		return "", fmt.Errorf("%w: %q cannot be used as a journal name", apperrors.ErrInvalidTarget, target)
	}
	return filepath.Join(j.dir, target+".json"), nil
}

func (j *Journal) read(target string) ([]Record, error) {
	p, err := j.path(target)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", p, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode journal %s: %w", p, err)
	}
	return records, nil
}

// write replaces the target's file through a temp file and rename.
func (j *Journal) write(target string, records []Record) error {
	p, err := j.path(target)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}

	tmp, err := os.CreateTemp(j.dir, "."+target+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp journal: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replace journal %s: %w", p, err)
	}
	return nil
}
