// Package tools implements the effectors behind the command router:
// sandboxed filesystem operations and conversation persistence.
package tools

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/nugget/quill/internal/paths"
)

// FileTools executes filesystem commands inside a storage sandbox.
// Every path is resolved through the sandbox before use; errors name
// the path as the model supplied it, never the host path.
type FileTools struct {
	sandbox *paths.Sandbox
	logger  *slog.Logger
}

// NewFileTools creates file tools confined to sandbox.
func NewFileTools(sandbox *paths.Sandbox, logger *slog.Logger) *FileTools {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTools{sandbox: sandbox, logger: logger.With("component", "file_tools")}
}

// Root returns the storage root.
func (ft *FileTools) Root() string {
	return ft.sandbox.Root()
}

// Cat reads the contents of a file.
func (ft *FileTools) Cat(ctx context.Context, path string) (string, error) {
	abs, err := ft.sandbox.Resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", pathError("open", path, err)
	}

	ft.logger.Debug("file read", "path", path, "bytes", len(data))
	return string(data), nil
}

// Copy copies a file, or a directory tree when src is a directory.
// A file copied onto an existing directory lands inside it. Mode and
// modification time are preserved.
func (ft *FileTools) Copy(ctx context.Context, src, dest string) error {
	srcAbs, err := ft.sandbox.Resolve(src)
	if err != nil {
		return err
	}
	destAbs, err := ft.sandbox.Resolve(dest)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcAbs)
	if err != nil {
		return pathError("copy", src, err)
	}

	if info.IsDir() {
		if _, err := os.Lstat(destAbs); err == nil {
			return pathError("copy", dest, fs.ErrExist)
		}
		if destAbs == srcAbs || withinDir(srcAbs, destAbs) {
			return pathError("copy", dest, errors.New("cannot copy a directory into itself"))
		}
		if err := ft.copyTree(ctx, srcAbs, destAbs); err != nil {
			return pathError("copy", src, err)
		}
		ft.logger.Info("directory copied", "src", src, "dest", dest)
		return nil
	}

	if di, err := os.Stat(destAbs); err == nil && di.IsDir() {
		destAbs = filepath.Join(destAbs, filepath.Base(srcAbs))
	}
	if err := copyFile(srcAbs, destAbs, info); err != nil {
		return pathError("copy", src, err)
	}
	ft.logger.Info("file copied", "src", src, "dest", dest)
	return nil
}

func (ft *FileTools) copyTree(ctx context.Context, src, dest string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		// Symlinks are copied as the files they point to, provided the
		// target stays inside the sandbox.
		from := p
		if d.Type()&fs.ModeSymlink != 0 {
			if from, err = ft.sandbox.Resolve(p); err != nil {
				return err
			}
		}
		info, err := os.Stat(from)
		if err != nil {
			return err
		}

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(from, target, info)
	})
}

func copyFile(src, dest string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// Move renames src to dest. Moving onto an existing directory places
// src inside it. Moves across devices fall back to copy and remove.
func (ft *FileTools) Move(ctx context.Context, src, dest string) error {
	srcAbs, err := ft.sandbox.ResolveEntry(src)
	if err != nil {
		return err
	}
	if ft.sandbox.IsRoot(srcAbs) {
		return paths.ErrRootProtected
	}

	destAbs, err := ft.sandbox.ResolveEntry(dest)
	if err != nil {
		return err
	}
	if followed, err := ft.sandbox.Resolve(dest); err == nil {
		if di, err := os.Stat(followed); err == nil && di.IsDir() {
			destAbs = filepath.Join(followed, filepath.Base(srcAbs))
		}
	}

	if _, err := os.Lstat(srcAbs); err != nil {
		return pathError("move", src, err)
	}

	err = os.Rename(srcAbs, destAbs)
	if errors.Is(err, syscall.EXDEV) {
		if err = ft.Copy(ctx, src, dest); err == nil {
			err = os.RemoveAll(srcAbs)
		}
	}
	if err != nil {
		return pathError("move", src, err)
	}

	ft.logger.Info("moved", "src", src, "dest", dest)
	return nil
}

// Remove deletes a file. A directory is removed only when recursive is
// set, together with its contents. The storage root is never removed.
func (ft *FileTools) Remove(ctx context.Context, path string, recursive bool) error {
	abs, err := ft.sandbox.ResolveEntry(path)
	if err != nil {
		return err
	}
	if ft.sandbox.IsRoot(abs) {
		return paths.ErrRootProtected
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return pathError("remove", path, err)
	}

	switch {
	case info.IsDir() && recursive:
		err = os.RemoveAll(abs)
	case info.IsDir():
		err = syscall.EISDIR
	default:
		err = os.Remove(abs)
	}
	if err != nil {
		return pathError("remove", path, err)
	}

	ft.logger.Info("removed", "path", path, "recursive", recursive)
	return nil
}

// Touch creates an empty file, or updates the modification time of an
// existing one.
func (ft *FileTools) Touch(ctx context.Context, path string) error {
	abs, err := ft.sandbox.Resolve(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return pathError("touch", path, err)
	}
	if err := f.Close(); err != nil {
		return pathError("touch", path, err)
	}

	now := time.Now()
	if err := os.Chtimes(abs, now, now); err != nil {
		return pathError("touch", path, err)
	}
	return nil
}

// Mkdir creates a directory and any missing parents. Existing
// directories are not an error.
func (ft *FileTools) Mkdir(ctx context.Context, path string) error {
	abs, err := ft.sandbox.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return pathError("mkdir", path, err)
	}
	return nil
}

// Rmdir removes an empty directory. The storage root is never removed.
func (ft *FileTools) Rmdir(ctx context.Context, path string) error {
	abs, err := ft.sandbox.ResolveEntry(path)
	if err != nil {
		return err
	}
	if ft.sandbox.IsRoot(abs) {
		return paths.ErrRootProtected
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return pathError("rmdir", path, err)
	}
	if !info.IsDir() {
		return pathError("rmdir", path, syscall.ENOTDIR)
	}
	if err := os.Remove(abs); err != nil {
		return pathError("rmdir", path, err)
	}
	return nil
}

// List returns the names of the entries of a directory. When recursive
// is set it returns every file beneath the
// directory instead, as "/"-prefixed paths relative to the storage
// root.
func (ft *FileTools) List(ctx context.Context, path string, recursive bool) ([]string, error) {
	abs, err := ft.sandbox.Resolve(path)
	if err != nil {
		return nil, err
	}

	if !recursive {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, pathError("list", displayPath(path), err)
		}
		result := make([]string, 0, len(entries))
		for _, entry := range entries {
			result = append(result, entry.Name())
		}
		return result, nil
	}

	if info, err := os.Stat(abs); err != nil {
		return nil, pathError("list", displayPath(path), err)
	} else if !info.IsDir() {
		return nil, pathError("list", displayPath(path), syscall.ENOTDIR)
	}

	result := []string{}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		result = append(result, "/"+ft.sandbox.Rel(p))
		return nil
	})
	if err != nil {
		return nil, pathError("list", displayPath(path), err)
	}
	sort.Strings(result)
	return result, nil
}

// Save writes data to a file, replacing its contents and creating
// parent directories as needed.
func (ft *FileTools) Save(ctx context.Context, path, data string) error {
	abs, err := ft.sandbox.Resolve(path)
	if err != nil {
		return err
	}
	if ft.sandbox.IsRoot(abs) {
		return pathError("save", displayPath(path), syscall.EISDIR)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return pathError("save", path, err)
	}
	if err := os.WriteFile(abs, []byte(data), 0o644); err != nil {
		return pathError("save", path, err)
	}

	ft.logger.Debug("file saved", "path", path, "bytes", len(data))
	return nil
}

// pathError reports err against the caller's path, dropping any host
// path carried by the underlying error.
func pathError(op, path string, err error) error {
	var pe *fs.PathError
	var le *os.LinkError
	switch {
	case errors.As(err, &pe):
		err = pe.Err
	case errors.As(err, &le):
		err = le.Err
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func displayPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

func withinDir(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
