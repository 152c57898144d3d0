package tools

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/nugget/quill/internal/paths"
)

func newTestFileTools(t *testing.T) (*FileTools, string) {
	t.Helper()
	sb, err := paths.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	return NewFileTools(sb, nil), sb.Root()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileTools_EscapeAttempts(t *testing.T) {
	ft, _ := newTestFileTools(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"cat parent", func() error { _, err := ft.Cat(ctx, "../outside.txt"); return err }},
		{"save sneaky", func() error { return ft.Save(ctx, "dir/../../outside.txt", "x") }},
		{"mkdir parent", func() error { return ft.Mkdir(ctx, "../newdir") }},
		{"touch parent", func() error { return ft.Touch(ctx, "../../x") }},
		{"copy out", func() error { return ft.Copy(ctx, "a.txt", "../a.txt") }},
		{"move out", func() error { return ft.Move(ctx, "a.txt", "../a.txt") }},
		{"rm parent", func() error { return ft.Remove(ctx, "..", true) }},
		{"rmdir parent", func() error { return ft.Rmdir(ctx, "..") }},
		{"ls parent", func() error { _, err := ft.List(ctx, "..", false); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, paths.ErrEscapesRoot) {
				t.Errorf("error = %v, want ErrEscapesRoot", err)
			}
		})
	}
}

func TestFileTools_RootProtected(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "keep.txt"), "x")

	for _, p := range []string{"", ".", "/", root, "sub/.."} {
		for _, recursive := range []bool{false, true} {
			if err := ft.Remove(ctx, p, recursive); !errors.Is(err, paths.ErrRootProtected) {
				t.Errorf("Remove(%q, %v) error = %v, want ErrRootProtected", p, recursive, err)
			}
		}
		if err := ft.Rmdir(ctx, p); !errors.Is(err, paths.ErrRootProtected) {
			t.Errorf("Rmdir(%q) error = %v, want ErrRootProtected", p, err)
		}
	}
	if err := ft.Remove(ctx, "", true); err.Error() != "Error: Cannot delete storage root." {
		t.Errorf("message = %q", err.Error())
	}
	if _, err := os.Stat(filepath.Join(root, "keep.txt")); err != nil {
		t.Error("root contents should survive")
	}
}

func TestFileTools_SaveCat(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()

	if err := ft.Save(ctx, "notes/today.md", "hello"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "notes", "today.md")); err != nil {
		t.Fatalf("file not created: %v", err)
	}
	got, err := ft.Cat(ctx, "notes/today.md")
	if err != nil {
		t.Fatalf("Cat: %v", err)
	}
	if got != "hello" {
		t.Errorf("Cat = %q, want %q", got, "hello")
	}

	if err := ft.Save(ctx, "notes/today.md", "bye"); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	if got, _ := ft.Cat(ctx, "notes/today.md"); got != "bye" {
		t.Errorf("after overwrite Cat = %q, want %q", got, "bye")
	}
}

func TestFileTools_CatMissing(t *testing.T) {
	ft, root := newTestFileTools(t)
	_, err := ft.Cat(context.Background(), "missing.txt")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Cat missing error = %v, want ErrNotExist", err)
	}
	if strings.Contains(err.Error(), root) {
		t.Errorf("error %q leaks host path", err.Error())
	}
	if !strings.Contains(err.Error(), "missing.txt") {
		t.Errorf("error %q should name the path", err.Error())
	}
}

func TestFileTools_CatReturnsWholeFile(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	content := "a" + strings.Repeat("é", 30720)
	writeFile(t, filepath.Join(root, "big.txt"), content)

	got, err := ft.Cat(ctx, "big.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(content) || got != content {
		t.Fatalf("Cat returned %d bytes, want %d unchanged", len(got), len(content))
	}
	if !utf8.ValidString(got) {
		t.Error("Cat returned invalid UTF-8")
	}

	if err := ft.Save(ctx, "copy.txt", got); err != nil {
		t.Fatal(err)
	}
	saved, err := os.ReadFile(filepath.Join(root, "copy.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(saved) != content {
		t.Error("cat then save should reproduce the file")
	}
}

func TestFileTools_CopyFileAndTree(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	os.Chtimes(filepath.Join(root, "a.txt"), old, old)

	if err := ft.Copy(ctx, "a.txt", "b.txt"); err != nil {
		t.Fatalf("Copy file: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "b.txt"))
	if err != nil {
		t.Fatalf("b.txt missing: %v", err)
	}
	if !info.ModTime().Equal(old) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), old)
	}

	os.Mkdir(filepath.Join(root, "box"), 0o755)
	if err := ft.Copy(ctx, "a.txt", "box"); err != nil {
		t.Fatalf("Copy into dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "box", "a.txt")); err != nil {
		t.Errorf("copy into directory failed: %v", err)
	}

	writeFile(t, filepath.Join(root, "tree", "x", "y.txt"), "y")
	if err := ft.Copy(ctx, "tree", "tree2"); err != nil {
		t.Fatalf("Copy tree: %v", err)
	}
	if got, _ := ft.Cat(ctx, "tree2/x/y.txt"); got != "y" {
		t.Errorf("copied tree content = %q, want y", got)
	}
	if err := ft.Copy(ctx, "tree", "tree2"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("Copy onto existing tree error = %v, want ErrExist", err)
	}
	if err := ft.Copy(ctx, "tree", "tree/inner"); err == nil {
		t.Error("Copy into itself should fail")
	}
}

func TestFileTools_Move(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	os.Mkdir(filepath.Join(root, "dir"), 0o755)

	if err := ft.Move(ctx, "a.txt", "renamed.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := ft.Move(ctx, "renamed.txt", "dir"); err != nil {
		t.Fatalf("Move into dir: %v", err)
	}
	if got, _ := ft.Cat(ctx, "dir/renamed.txt"); got != "alpha" {
		t.Errorf("moved content = %q, want alpha", got)
	}
	if err := ft.Move(ctx, "nope.txt", "x.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Move missing error = %v, want ErrNotExist", err)
	}
	if err := ft.Move(ctx, "", "elsewhere"); !errors.Is(err, paths.ErrRootProtected) {
		t.Errorf("Move root error = %v, want ErrRootProtected", err)
	}
}

func TestFileTools_RemoveAndRmdir(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "dir", "f.txt"), "x")
	os.Mkdir(filepath.Join(root, "empty"), 0o755)

	if err := ft.Remove(ctx, "dir", false); err == nil {
		t.Error("Remove directory without recursive should fail")
	}
	if err := ft.Rmdir(ctx, "dir"); err == nil {
		t.Error("Rmdir non-empty should fail")
	}
	if err := ft.Rmdir(ctx, "dir/f.txt"); err == nil {
		t.Error("Rmdir on a file should fail")
	}
	if err := ft.Remove(ctx, "dir/f.txt", false); err != nil {
		t.Errorf("Remove file: %v", err)
	}
	if err := ft.Rmdir(ctx, "empty"); err != nil {
		t.Errorf("Rmdir empty: %v", err)
	}
	writeFile(t, filepath.Join(root, "dir", "g.txt"), "x")
	if err := ft.Remove(ctx, "dir", true); err != nil {
		t.Errorf("Remove recursive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dir")); !os.IsNotExist(err) {
		t.Error("dir should be gone")
	}
}

func TestFileTools_RemoveSymlinkKeepsTarget(t *testing.T) {
	ft, root := newTestFileTools(t)
	writeFile(t, filepath.Join(root, "real.txt"), "x")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if err := ft.Remove(context.Background(), "link.txt", false); err != nil {
		t.Fatalf("Remove link: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "real.txt")); err != nil {
		t.Error("symlink target should survive")
	}
}

func TestFileTools_TouchMkdir(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()

	if err := ft.Touch(ctx, "new.txt"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	writeFile(t, filepath.Join(root, "old.txt"), "keep")
	old := time.Now().Add(-24 * time.Hour)
	os.Chtimes(filepath.Join(root, "old.txt"), old, old)
	if err := ft.Touch(ctx, "old.txt"); err != nil {
		t.Fatalf("Touch existing: %v", err)
	}
	info, _ := os.Stat(filepath.Join(root, "old.txt"))
	if !info.ModTime().After(old) {
		t.Error("Touch should update mtime")
	}
	if got, _ := ft.Cat(ctx, "old.txt"); got != "keep" {
		t.Errorf("Touch changed content to %q", got)
	}

	for i := 0; i < 2; i++ {
		if err := ft.Mkdir(ctx, "a/b/c"); err != nil {
			t.Fatalf("Mkdir pass %d: %v", i, err)
		}
	}
}

func TestFileTools_List(t *testing.T) {
	ft, root := newTestFileTools(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "a.txt"), "")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "")
	writeFile(t, filepath.Join(root, "sub", "deep", "c.txt"), "")

	got, err := ft.List(ctx, "", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"a.txt", "sub"}, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	got, err = ft.List(ctx, "sub", false)
	if err != nil {
		t.Fatalf("List sub: %v", err)
	}
	if diff := cmp.Diff([]string{"b.txt", "deep"}, got); diff != "" {
		t.Errorf("List sub entries mismatch (-want +got):\n%s", diff)
	}

	got, err = ft.List(ctx, "", true)
	if err != nil {
		t.Fatalf("List recursive: %v", err)
	}
	want := []string{"/a.txt", "/sub/b.txt", "/sub/deep/c.txt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List recursive mismatch (-want +got):\n%s", diff)
	}

	got, err = ft.List(ctx, "sub", true)
	if err != nil {
		t.Fatalf("List recursive sub: %v", err)
	}
	if diff := cmp.Diff([]string{"/sub/b.txt", "/sub/deep/c.txt"}, got); diff != "" {
		t.Errorf("List sub mismatch (-want +got):\n%s", diff)
	}

	if _, err := ft.List(ctx, "nope", false); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("List missing error = %v, want ErrNotExist", err)
	}
}
