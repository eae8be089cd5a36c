package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type FSWriter struct {
	dir    string
	now    func() time.Time
	logger *log.Logger
}

type FSOption func(*FSWriter)

func WithFSClock(now func() time.Time) FSOption {
	return func(w *FSWriter) {
		if now != nil {
			w.now = now
		}
	}
}

func WithFSLogger(logger *log.Logger) FSOption {
	return func(w *FSWriter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewFSWriter(dir string, opts ...FSOption) *FSWriter {
	w := &FSWriter{
		dir:    dir,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *FSWriter) Dir() string { return w.dir }

func (w *FSWriter) Write(ctx context.Context, payload []byte, prefix string, page *int) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	body, err := formatPayload(payload)
	if err != nil {
		return Ref{}, err
	}

	at := w.now().UTC()
	name := ObjectName(prefix, page, at)

	path, err := w.create(name, func(f *os.File) error {
		_, err := f.Write(body)
		return err
	})
	if err != nil {
		return Ref{}, err
	}

	return Ref{
		Name:      name,
		Location:  path,
		Prefix:    prefix,
		Page:      pageNumber(page),
		Size:      int64(len(body)),
		WrittenAt: at,
	}, nil
}

// IngestFile copies a pre-existing local file into the bronze directory as
// <stem>_<timestamp><ext>. The content is copied byte for byte.
func (w *FSWriter) IngestFile(ctx context.Context, src string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, err
	}

	in, err := os.Open(src)
	if err != nil {
		return Ref{}, fmt.Errorf("snapshot: open %s: %w", src, err)
	}
	defer in.Close()

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	at := w.now().UTC()
	name := fmt.Sprintf("%s_%s%s", stem, at.Format(timestampLayout), ext)

	var size int64
	path, err := w.create(name, func(f *os.File) error {
		n, err := io.Copy(f, in)
		size = n
		return err
	})
	if err != nil {
		return Ref{}, err
	}

	return Ref{
		Name:      name,
		Location:  path,
		Prefix:    stem,
		Size:      size,
		WrittenAt: at,
	}, nil
}

// IngestDir copies every regular file directly under dir.
func (w *FSWriter) IngestDir(ctx context.Context, dir string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", dir, err)
	}

	var refs []Ref
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ref, err := w.IngestFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			return refs, err
		}
		w.logger.Printf("[OK] Ingested %s -> %s", e.Name(), ref.Name)
		refs = append(refs, ref)
	}
	return refs, nil
}

// create writes a new file exclusively; an existing artifact is never
// overwritten.
func (w *FSWriter) create(name string, fill func(*os.File) error) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("snapshot: create %s: %w", name, err)
	}

	werr := fill(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	return path, nil
}
