package imaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/bodgit/sevenzip"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".gif":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageName reports whether the file extension names a decodable image.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// IsArchiveName reports whether the file is a sprite archive.
func IsArchiveName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".zip", ".7z":
		return true
	}
	return false
}

// ExpandArchive returns the image members of a .zip or .7z archive sorted by
// member path. Directories and non-image members are skipped.
func ExpandArchive(name string, data []byte) ([]Source, error) {
	var (
		sources []Source
		err     error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".zip":
		sources, err = expandZip(data)
	case ".7z":
		sources, err = expandSevenZip(data)
	default:
		return nil, fmt.Errorf("imaging: %s is not a supported archive", name)
	}
	if err != nil {
		return nil, fmt.Errorf("imaging: open archive %s: %w", name, err)
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

type archiveMember interface {
	Open() (io.ReadCloser, error)
}

func readMember(m archiveMember) ([]byte, error) {
	rc, err := m.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func expandZip(data []byte) ([]Source, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var out []Source
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsImageName(f.Name) {
			continue
		}
		body, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out = append(out, Source{Name: f.Name, Data: body})
	}
	return out, nil
}

func expandSevenZip(data []byte) ([]Source, error) {
	r, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var out []Source
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsImageName(f.Name) {
			continue
		}
		body, err := readMember(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out = append(out, Source{Name: f.Name, Data: body})
	}
	return out, nil
}
