package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash"
)

// ManifestFile is the session manifest inside .spritepal/state.
const ManifestFile = "session.json"

// ErrManifestNotFound is returned when no session has been saved yet.
var ErrManifestNotFound = errors.New("workspace: manifest not found")

// InputRecord pins one input path to the content it had when accepted.
type InputRecord struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// Manifest records the inputs a session retained so it can be replayed.
type Manifest struct {
	BaseDocument *InputRecord  `json:"base_document,omitempty"`
	BaseImage    *InputRecord  `json:"base_image,omitempty"`
	Images       []InputRecord `json:"images,omitempty"`
	Documents    []InputRecord `json:"documents,omitempty"`
	Output       string        `json:"output,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Paths lists every input path in replay order.
func (m Manifest) Paths() []string {
	var out []string
	if m.BaseDocument != nil {
		out = append(out, m.BaseDocument.Path)
	}
	if m.BaseImage != nil {
		out = append(out, m.BaseImage.Path)
	}
	for _, rec := range m.Images {
		out = append(out, rec.Path)
	}
	for _, rec := range m.Documents {
		out = append(out, rec.Path)
	}
	return out
}

// Changed returns the inputs whose content differs from the recorded
// fingerprint, including ones that can no longer be read.
func (m Manifest) Changed() []string {
	var records []InputRecord
	if m.BaseDocument != nil {
		records = append(records, *m.BaseDocument)
	}
	if m.BaseImage != nil {
		records = append(records, *m.BaseImage)
	}
	records = append(records, m.Images...)
	records = append(records, m.Documents...)
	var changed []string
	for _, rec := range records {
		current, err := FingerprintFile(rec.Path)
		if err != nil || current != rec.Fingerprint {
			changed = append(changed, rec.Path)
		}
	}
	return changed
}

// Fingerprint hashes input content.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// FingerprintFile hashes the file at path.
func FingerprintFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}

// Record builds an InputRecord for path with its current fingerprint.
func Record(path string) (InputRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return InputRecord{}, err
	}
	sum, err := FingerprintFile(abs)
	if err != nil {
		return InputRecord{}, fmt.Errorf("workspace: fingerprint %s: %w", path, err)
	}
	return InputRecord{Path: abs, Fingerprint: sum}, nil
}

// ManifestStore persists session manifests.
type ManifestStore interface {
	Load() (Manifest, error)
	Save(Manifest) error
}

// Repository stores the manifest within the project's state directory.
type Repository struct {
	path string
	now  func() time.Time
}

// RepositoryOption customizes a Repository.
type RepositoryOption func(*Repository)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(clock func() time.Time) RepositoryOption {
	return func(r *Repository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewRepository creates a repository rooted at stateDir.
func NewRepository(stateDir string, opts ...RepositoryOption) *Repository {
	r := &Repository{path: filepath.Join(stateDir, ManifestFile), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Path returns the manifest file location.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the persisted manifest if present.
func (r *Repository) Load() (Manifest, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, ErrManifestNotFound
		}
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("workspace: parse %s: %w", r.path, err)
	}
	return m, nil
}

// Save writes the manifest, stamping UpdatedAt.
func (r *Repository) Save(m Manifest) error {
	m.UpdatedAt = r.now().UTC()
	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, append(encoded, '\n'))
}

var _ ManifestStore = (*Repository)(nil)
