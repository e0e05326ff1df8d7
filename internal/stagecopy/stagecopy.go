// Package stagecopy implements the stage-copy engine (component 4.5): it
// moves a path from one stage's container into another's, the same way
// docker build's multi-stage COPY --from does, but against already-running
// containers instead of build-time layers.
package stagecopy

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/ctrstack/livepush/internal/container"
	"github.com/ctrstack/livepush/internal/livepusherr"
	"github.com/ctrstack/livepush/internal/stage"
)

// Engine runs stage-copy operations against a container.Runtime, memoizing
// directory-vs-file probes per container+path as required by 4.5.
type Engine struct {
	rt container.Runtime

	mu       sync.Mutex
	dirCache map[dirCacheKey]bool
}

type dirCacheKey struct {
	containerID string
	path        string
}

func NewEngine(rt container.Runtime) *Engine {
	return &Engine{rt: rt, dirCache: make(map[dirCacheKey]bool)}
}

// Copy moves copy.Source from sourceContainer into copy.Dest in
// destContainer, dispatching to a directory or file copy depending on what
// copy.Source names in the source container.
func (e *Engine) Copy(ctx context.Context, sourceContainer, destContainer string, cp stage.StageCopy) error {
	isDir, err := e.pathIsDirectory(ctx, sourceContainer, cp.Source)
	if err != nil {
		return err
	}
	if isDir {
		return e.copyDirectory(ctx, sourceContainer, destContainer, cp)
	}
	return e.copyFile(ctx, sourceContainer, destContainer, cp)
}

// pathIsDirectory runs a detached `test -d` and memoizes the result per
// container+path for the lifetime of the engine.
func (e *Engine) pathIsDirectory(ctx context.Context, containerID, p string) (bool, error) {
	key := dirCacheKey{containerID, p}

	e.mu.Lock()
	if v, ok := e.dirCache[key]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	result, err := e.rt.Exec(ctx, containerID, []string{"test", "-d", p})
	if err != nil {
		return false, err
	}
	isDir := result.ExitCode == 0

	e.mu.Lock()
	e.dirCache[key] = isDir
	e.mu.Unlock()

	return isDir, nil
}

// copyDirectory implements 4.5 step 2: fetch an archive of copy.Source from
// the source container, drop anything that isn't a regular file or
// directory, rewrite entry names onto copy.Dest, and stream the result back
// to the destination's root.
func (e *Engine) copyDirectory(ctx context.Context, sourceContainer, destContainer string, cp stage.StageCopy) error {
	destIsDir, err := e.pathIsDirectory(ctx, destContainer, cp.Dest)
	if err != nil {
		return err
	}
	if !destIsDir && !strings.HasSuffix(cp.Dest, "/") {
		return &livepusherr.InternalInconsistencyError{
			Message: fmt.Sprintf("stage-copy destination %q is not a directory for directory source %q", cp.Dest, cp.Source),
		}
	}

	rc, err := e.rt.GetArchive(ctx, sourceContainer, cp.Source)
	if err != nil {
		return err
	}
	defer rc.Close()

	rewritten, err := rewriteArchive(rc, cp.Source, cp.Dest)
	if err != nil {
		return err
	}

	return e.rt.PutArchive(ctx, destContainer, "/", rewritten)
}

// rewriteArchive strips the basename of source from each entry's leading
// path segment and re-roots the remainder under dest, preserving mode and
// timestamps and dropping non-regular, non-directory entries.
func rewriteArchive(r io.Reader, source, dest string) (io.Reader, error) {
	tr := tar.NewReader(r)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	base := path.Base(strings.TrimSuffix(source, "/"))

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &livepusherr.RuntimeError{Message: "reading stage-copy archive", Err: err}
		}

		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeDir {
			continue
		}

		rel := strings.TrimPrefix(hdr.Name, base)
		rel = strings.TrimPrefix(rel, "/")
		newName := dest
		if rel != "" {
			newName = path.Join(dest, rel)
		}
		if hdr.Typeflag == tar.TypeDir {
			newName = strings.TrimSuffix(newName, "/") + "/"
		}

		newHdr := &tar.Header{
			Name:       strings.TrimPrefix(newName, "/"),
			Typeflag:   hdr.Typeflag,
			Mode:       hdr.Mode,
			Size:       hdr.Size,
			ModTime:    hdr.ModTime,
			AccessTime: hdr.AccessTime,
			ChangeTime: hdr.ChangeTime,
		}
		if err := tw.WriteHeader(newHdr); err != nil {
			return nil, &livepusherr.RuntimeError{Message: "writing stage-copy archive entry", Err: err}
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, tr); err != nil {
				return nil, &livepusherr.RuntimeError{Message: "copying stage-copy archive entry", Err: err}
			}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, &livepusherr.RuntimeError{Message: "closing stage-copy archive", Err: err}
	}
	return &buf, nil
}

// copyFile implements 4.5 step 3: read the source file via a detached cat,
// its mode via stat, and upload a one-entry archive at the resolved
// destination path.
func (e *Engine) copyFile(ctx context.Context, sourceContainer, destContainer string, cp stage.StageCopy) error {
	catResult, err := e.rt.Exec(ctx, sourceContainer, []string{"cat", cp.Source})
	if err != nil {
		return err
	}
	if catResult.ExitCode != 0 {
		return &livepusherr.RuntimeError{Message: fmt.Sprintf("cat %s failed in source container", cp.Source)}
	}

	statResult, err := e.rt.Exec(ctx, sourceContainer, []string{"stat", "-c", "%a", cp.Source})
	if err != nil {
		return err
	}
	mode, err := strconv.ParseInt(strings.TrimSpace(string(statResult.Stdout)), 8, 64)
	if err != nil {
		return &livepusherr.RuntimeError{Message: "parsing stage-copy source mode", Err: err}
	}

	destIsDir, err := e.pathIsDirectory(ctx, destContainer, cp.Dest)
	if err != nil {
		return err
	}

	destPath := cp.Dest
	if destIsDir || strings.HasSuffix(cp.Dest, "/") {
		destPath = path.Join(cp.Dest, path.Base(cp.Source))
	}
	if !path.IsAbs(destPath) {
		return &livepusherr.InternalInconsistencyError{
			Message: fmt.Sprintf("resolved stage-copy destination %q is not absolute", destPath),
		}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: strings.TrimPrefix(destPath, "/"),
		Mode: mode,
		Size: int64(len(catResult.Stdout)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return &livepusherr.RuntimeError{Message: "writing stage-copy file header", Err: err}
	}
	if _, err := tw.Write(catResult.Stdout); err != nil {
		return &livepusherr.RuntimeError{Message: "writing stage-copy file body", Err: err}
	}
	if err := tw.Close(); err != nil {
		return &livepusherr.RuntimeError{Message: "closing stage-copy file archive", Err: err}
	}

	return e.rt.PutArchive(ctx, destContainer, "/", &buf)
}
