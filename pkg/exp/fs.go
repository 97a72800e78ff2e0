package exp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const fileExt = ".json"

// FileStorage keeps one JSON document per run ID under basePath
type FileStorage[T Data] struct {
	basePath string
}

func NewFileStorage[T Data](basePath string) (*FileStorage[T], error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage dir %s", basePath)
	}
	return &FileStorage[T]{basePath: basePath}, nil
}

// Save writes data to a temporary file and renames it into place, so readers never
// observe a partially written document.
func (fs *FileStorage[T]) Save(id string, data T) error {
	f, err := os.CreateTemp(fs.basePath, "."+id+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmp := f.Name()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to encode %s", id)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, fs.path(id)); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to store %s", id)
	}
	return nil
}

// Load decodes the document stored under id. A pointer T is allocated by the decoder.
func (fs *FileStorage[T]) Load(id string) (T, error) {
	var data T

	raw, err := os.ReadFile(fs.path(id))
	if err != nil {
		return data, err
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, errors.Wrapf(err, "failed to decode %s", id)
	}
	return data, nil
}

// ExperimentInfo contains metadata about a stored run
type ExperimentInfo struct {
	ID         string    `json:"id"`
	ModifiedAt time.Time `json:"modified_at"`
	FileSizeKB int64     `json:"file_size_kb"`
}

// List returns every stored run, oldest first
func (fs *FileStorage[T]) List() ([]ExperimentInfo, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, err
	}

	var infos []ExperimentInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // removed since ReadDir
		}

		infos = append(infos, ExperimentInfo{
			ID:         strings.TrimSuffix(name, fileExt),
			ModifiedAt: info.ModTime(),
			FileSizeKB: info.Size() / 1024,
		})
	}

	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].ModifiedAt.Equal(infos[j].ModifiedAt) {
			return infos[i].ModifiedAt.Before(infos[j].ModifiedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

func (fs *FileStorage[T]) path(id string) string {
	return filepath.Join(fs.basePath, id+fileExt)
}
