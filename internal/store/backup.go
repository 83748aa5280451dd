package store

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// BackupInfo describes one archive.
type BackupInfo struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	Source    string    `json:"source"`
	Archive   string    `json:"archive"`
	Files     int       `json:"files"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// BackupStore keeps tar.gz snapshots of directories plus a JSON index.
type BackupStore struct {
	dir string

	once  sync.Once
	index *Collection[BackupInfo]
	err   error
}

func NewBackupStore(dir string) *BackupStore {
	return &BackupStore{dir: dir}
}

func (b *BackupStore) indexCollection() (*Collection[BackupInfo], error) {
	b.once.Do(func() {
		b.index, b.err = OpenCollection(filepath.Join(b.dir, "index.json"), func(i BackupInfo) string { return i.ID })
	})
	return b.index, b.err
}

// Create archives every regular file under source.
func (b *BackupStore) Create(source, label string) (BackupInfo, error) {
	index, err := b.indexCollection()
	if err != nil {
		return BackupInfo{}, err
	}
	info, err := os.Stat(source)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("backup source: %w", err)
	}
	if !info.IsDir() {
		return BackupInfo{}, fmt.Errorf("backup source %s is not a directory", source)
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return BackupInfo{}, fmt.Errorf("create backup dir: %w", err)
	}

	id := NewID()
	archive := filepath.Join(b.dir, id+".tar.gz")
	files, err := writeArchive(archive, source, b.dir)
	if err != nil {
		_ = os.Remove(archive)
		return BackupInfo{}, err
	}
	st, err := os.Stat(archive)
	if err != nil {
		return BackupInfo{}, err
	}

	rec := BackupInfo{
		ID:        id,
		Label:     label,
		Source:    source,
		Archive:   archive,
		Files:     files,
		Size:      st.Size(),
		CreatedAt: time.Now(),
	}
	if err := index.Put(rec); err != nil {
		return BackupInfo{}, err
	}
	return rec, nil
}

func (b *BackupStore) List() ([]BackupInfo, error) {
	index, err := b.indexCollection()
	if err != nil {
		return nil, err
	}
	return index.List(), nil
}

// Restore extracts backup id into dest, overwriting existing files.
func (b *BackupStore) Restore(id, dest string) (int, error) {
	index, err := b.indexCollection()
	if err != nil {
		return 0, err
	}
	rec, ok := index.Get(id)
	if !ok {
		return 0, fmt.Errorf("backup %s not found", id)
	}
	if dest == "" {
		dest = rec.Source
	}
	return extractArchive(rec.Archive, dest)
}

func (b *BackupStore) Delete(id string) (bool, error) {
	index, err := b.indexCollection()
	if err != nil {
		return false, err
	}
	rec, ok := index.Get(id)
	if !ok {
		return false, nil
	}
	if err := os.Remove(rec.Archive); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove archive: %w", err)
	}
	return index.Delete(id)
}

// writeArchive tars source into path, skipping skipDir so a backup directory
// inside the source is never archived into itself.
func writeArchive(path, source, skipDir string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	skip, _ := filepath.Abs(skipDir)
	files := 0
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if abs, _ := filepath.Abs(p); d.IsDir() && abs == skip {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		src.Close()
		if err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", source, err)
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return files, nil
}

func extractArchive(path, dest string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read archive: %w", err)
	}
	defer gz.Close()

	root := filepath.Clean(dest)
	tr := tar.NewReader(gz)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return files, fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return files, err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return files, err
		}
		_, err = io.Copy(out, tr)
		out.Close()
		if err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}
