// Package version keeps the append-only history of a document while it is
// being pruned. Every saved version gets the next number for its document
// and is written once to {dir}/{document_id}/v{n}.json.
package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	clog "github.com/xrsl/tailor/pkg/log"
	"github.com/xrsl/tailor/pkg/utils"
)

// ErrNotFound is returned when a requested version does not exist.
var ErrNotFound = errors.New("version not found")

// Metadata describes how a version was produced.
type Metadata struct {
	QualityScore float64 `json:"quality_score,omitempty"`
	Iteration    int     `json:"iteration"`
	Note         string  `json:"note,omitempty"`
	// Parent is the version this one was derived from; 0 for the first.
	Parent int `json:"parent,omitempty"`
}

// Version is an immutable snapshot of a document.
type Version struct {
	Number     int       `json:"version"`
	DocumentID string    `json:"document_id"`
	Content    string    `json:"content"`
	Length     int       `json:"length"`
	Metadata   Metadata  `json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists versions for any number of documents. It is safe for
// concurrent use across documents; a single document must have one writer.
type Store struct {
	dir string

	mu     sync.Mutex
	latest map[string]int
}

// NewStore returns a store rooted at dir (typically {run_dir}/versions).
func NewStore(dir string) *Store {
	return &Store{dir: dir, latest: make(map[string]int)}
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// Save appends content as the next version of docID.
func (s *Store) Save(docID, content string, meta Metadata) (Version, error) {
	if err := validID(docID); err != nil {
		return Version{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.latestLocked(docID)
	if err != nil {
		return Version{}, err
	}

	v := Version{
		Number:     last + 1,
		DocumentID: docID,
		Content:    content,
		Length:     len(content),
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := utils.WriteJSONOnce(s.path(docID, v.Number), v); err != nil {
		return Version{}, fmt.Errorf("save %s v%d: %w", docID, v.Number, err)
	}
	s.latest[docID] = v.Number

	clog.Debug("saved version",
		"document", docID,
		"version", v.Number,
		"parent", meta.Parent,
		"length", v.Length,
	)
	return v, nil
}

// Load reads version n of docID.
func (s *Store) Load(docID string, n int) (Version, error) {
	if err := validID(docID); err != nil {
		return Version{}, err
	}
	var v Version
	if err := utils.ReadJSON(s.path(docID, n), &v); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Version{}, fmt.Errorf("%w: %s v%d", ErrNotFound, docID, n)
		}
		return Version{}, err
	}
	return v, nil
}

// Latest returns the highest-numbered version of docID.
func (s *Store) Latest(docID string) (Version, error) {
	s.mu.Lock()
	n, err := s.latestLocked(docID)
	s.mu.Unlock()
	if err != nil {
		return Version{}, err
	}
	if n == 0 {
		return Version{}, fmt.Errorf("%w: %s has no versions", ErrNotFound, docID)
	}
	return s.Load(docID, n)
}

// List returns every version of docID in ascending order.
func (s *Store) List(docID string) ([]Version, error) {
	nums, err := s.numbers(docID)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(nums))
	for _, n := range nums {
		v, err := s.Load(docID, n)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Documents lists the document ids that have at least one version.
func (s *Store) Documents() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) latestLocked(docID string) (int, error) {
	if n, ok := s.latest[docID]; ok {
		return n, nil
	}
	// First touch of this document: pick up versions from an earlier process.
	nums, err := s.numbers(docID)
	if err != nil {
		return 0, err
	}
	n := 0
	if len(nums) > 0 {
		n = nums[len(nums)-1]
	}
	s.latest[docID] = n
	return n, nil
}

func (s *Store) numbers(docID string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"))
		if err != nil || n <= 0 {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

func (s *Store) path(docID string, n int) string {
	return filepath.Join(s.dir, docID, fmt.Sprintf("v%d.json", n))
}

func validID(docID string) error {
	if docID == "" || docID == "." || docID == ".." || strings.ContainsAny(docID, `/\`) {
		return fmt.Errorf("invalid document id %q", docID)
	}
	return nil
}
