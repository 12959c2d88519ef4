package storage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pasteapi/internal/model"
)

const (
	metadataDir = "metadata"
	tempPrefix  = ".tmp-"
	// Temp files older than this at startup were left by a crashed writer.
	staleTempAge = time.Hour
)

// Filesystem stores one file per paste under dir and the language tag under dir/metadata.
//
// Writes go to a temp file in the same directory and are published with
// os.Link, which fails instead of replacing an existing id. The metadata file
// is linked first and acts as the id reservation, so a reader that finds the
// content file always finds its metadata too.
type Filesystem struct {
	dir     string
	metaDir string
	bufSize int
	log     logrus.FieldLogger
}

// NewFilesystem creates dir and dir/metadata if needed.
func NewFilesystem(dir string, log logrus.FieldLogger) (*Filesystem, error) {
	if dir == "" {
		return nil, fmt.Errorf("filesystem dir is required")
	}
	metaDir := filepath.Join(dir, metadataDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrIO, metaDir, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	f := &Filesystem{
		dir:     dir,
		metaDir: metaDir,
		bufSize: 64 * 1024,
		log:     log.WithField("backend", "filesystem"),
	}
	f.sweepTemps(time.Now().Add(-staleTempAge))
	return f, nil
}

// sweepTemps removes temp files last modified before cutoff. Younger ones
// may belong to another process sharing dir.
func (f *Filesystem) sweepTemps(cutoff time.Time) {
	removed := 0
	for _, dir := range []string{f.dir, f.metaDir} {
		matches, err := filepath.Glob(filepath.Join(dir, tempPrefix+"*"))
		if err != nil {
			continue
		}
		for _, path := range matches {
			info, err := os.Lstat(path)
			if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
				continue
			}
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		f.log.WithField("removed", removed).Info("swept stale temp files")
	}
}

var (
	_ Backend       = (*Filesystem)(nil)
	_ StreamCreator = (*Filesystem)(nil)
	_ Pinger        = (*Filesystem)(nil)
)

// Create stores an in-memory paste.
func (f *Filesystem) Create(ctx context.Context, id string, content []byte, meta string) error {
	_, err := f.CreateFrom(ctx, id, bytes.NewReader(content), meta)
	return err
}

// CreateFrom streams r into a temp file and publishes it once r hits EOF.
func (f *Filesystem) CreateFrom(ctx context.Context, id string, r io.Reader, meta string) (int64, error) {
	// Reserved names are permanently taken, so the caller draws another id.
	if reserved(id) {
		return 0, ErrConflict
	}
	contentPath, metaPath, err := f.paths(id)
	if err != nil {
		return 0, err
	}

	if _, err := os.Lstat(contentPath); err == nil {
		return 0, ErrConflict
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIO, id, err)
	}

	tmpPath, n, err := f.writeTemp(f.dir, readerWithCtx(ctx, r))
	if err != nil {
		return 0, err
	}
	// After a successful link the temp name is just a second hard link.
	defer os.Remove(tmpPath)

	if err := f.publish(f.metaDir, metaPath, []byte(meta)); err != nil {
		return 0, err
	}

	if err := os.Link(tmpPath, contentPath); err != nil {
		_ = os.Remove(metaPath)
		if os.IsExist(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("%w: link %s: %v", ErrIO, id, err)
	}
	_ = syncDir(f.dir)

	f.log.WithFields(logrus.Fields{"id": id, "size": n}).Debug("stored paste")
	return n, nil
}

// Retrieve reads the content file and its metadata, defaulting the tag if the sidecar is missing.
func (f *Filesystem) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	contentPath, metaPath, err := f.paths(id)
	if err != nil {
		return nil, ErrNotFound
	}

	content, err := os.ReadFile(contentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, id, err)
	}

	meta := model.DefaultMeta
	raw, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		meta = string(raw)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("%w: read metadata %s: %v", ErrIO, id, err)
	}

	return &model.Paste{ID: id, Content: content, Meta: meta}, nil
}

// Ping checks that the storage directory is still reachable.
func (f *Filesystem) Ping(ctx context.Context) error {
	if _, err := os.Stat(f.metaDir); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (f *Filesystem) paths(id string) (string, string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || reserved(id) {
		return "", "", fmt.Errorf("invalid paste id %q", id)
	}
	return filepath.Join(f.dir, id), filepath.Join(f.metaDir, id), nil
}

// reserved reports names that share dir with pastes but are not pastes.
func reserved(id string) bool {
	return id == metadataDir || strings.HasPrefix(id, tempPrefix)
}

// writeTemp copies r into a synced temp file in dir and returns its path.
// The temp file is removed on any failure.
func (f *Filesystem) writeTemp(dir string, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", 0, fmt.Errorf("%w: create temp: %v", ErrIO, err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", 0, err
	}

	bw := bufio.NewWriterSize(tmp, f.bufSize)
	n, err := io.Copy(bw, r)
	if err != nil {
		// Read-side errors (truncation, cancellation) keep their identity for the caller.
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("%w: flush: %v", ErrIO, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("%w: sync: %v", ErrIO, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return tmpPath, n, nil
}

// publish writes data to dest without ever replacing an existing file.
func (f *Filesystem) publish(dir, dest string, data []byte) error {
	tmpPath, _, err := f.writeTemp(dir, bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, dest); err != nil {
		if os.IsExist(err) {
			return ErrConflict
		}
		return fmt.Errorf("%w: link %s: %v", ErrIO, filepath.Base(dest), err)
	}
	return nil
}

// syncDir best-effort fsyncs the parent directory so the new link survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// readerWithCtx checks ctx before every Read.
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
