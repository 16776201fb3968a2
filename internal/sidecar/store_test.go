package sidecar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/models"
	"github.com/starford/sidecar/internal/storage"
	"github.com/starford/sidecar/internal/testutil"
)

var fixedNow = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

type memRecorder struct {
	mu   sync.Mutex
	rows []models.Activity
}

func (m *memRecorder) Record(_ context.Context, a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, a)
	return nil
}

func (m *memRecorder) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.rows {
		out = append(out, r.Op+":"+r.SidecarPath)
	}
	return out
}

func testStore(t *testing.T) (*Store, storage.Provider, *memRecorder) {
	t.Helper()
	_, files := testutil.TestVault(t)
	rec := &memRecorder{}
	st := New(files,
		WithJournal(rec),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(testutil.Logger()),
	)
	return st, files, rec
}

func writeAsset(t *testing.T, files storage.Provider, path string) models.File {
	t.Helper()
	if err := files.Write(path, []byte("binary")); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
	f, err := files.Stat(path)
	if err != nil {
		t.Fatalf("Stat %s: %v", path, err)
	}
	return f
}

func mustExist(t *testing.T, files storage.Provider, path string, want bool) {
	t.Helper()
	ok, err := files.Exists(path)
	if err != nil {
		t.Fatalf("Exists %s: %v", path, err)
	}
	if ok != want {
		t.Errorf("Exists(%q) = %v, want %v", path, ok, want)
	}
}

func TestCreateDefaultTemplate(t *testing.T) {
	st, files, rec := testStore(t)
	asset := writeAsset(t, files, "images/photo.png")

	got, err := st.Create(context.Background(), DefaultSettings(), asset)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got == nil || got.Path != "images/photo.png.md" {
		t.Fatalf("Create = %+v, want images/photo.png.md", got)
	}

	data, err := files.Read("images/photo.png.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	content := string(data)
	for _, want := range []string{`source: "images/photo.png"`, "created: 2024-05-17", "# photo.png"} {
		if !strings.Contains(content, want) {
			t.Errorf("sidecar missing %q:\n%s", want, content)
		}
	}
	if ops := rec.ops(); len(ops) != 1 || ops[0] != "created:images/photo.png.md" {
		t.Errorf("journal = %v", ops)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	st, files, rec := testStore(t)
	asset := writeAsset(t, files, "doc.pdf")
	ctx := context.Background()

	first, err := st.Create(ctx, DefaultSettings(), asset)
	if err != nil || first == nil {
		t.Fatalf("first Create = %v, %v", first, err)
	}
	_ = files.Write("doc.pdf.md", []byte("edited by hand"))

	second, err := st.Create(ctx, DefaultSettings(), asset)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if second != nil {
		t.Errorf("second Create = %+v, want nil", second)
	}
	data, _ := files.Read("doc.pdf.md")
	if string(data) != "edited by hand" {
		t.Errorf("existing sidecar overwritten: %q", data)
	}
	if n := len(rec.ops()); n != 1 {
		t.Errorf("journal rows = %d, want 1", n)
	}
}

func TestCreateSkipsNotes(t *testing.T) {
	st, files, _ := testStore(t)
	ctx := context.Background()
	for _, p := range []string{"notes/daily.md", "photo.png.md"} {
		_ = files.Write(p, []byte("# note"))
		got, err := st.Create(ctx, DefaultSettings(), models.FileFromPath(p))
		if err != nil || got != nil {
			t.Errorf("Create(%q) = %v, %v; want nil, nil", p, got, err)
		}
		mustExist(t, files, p+".md", false)
	}
}

func TestCreateCustomPatternAndTemplate(t *testing.T) {
	st, files, _ := testStore(t)
	cfg := DefaultSettings()
	cfg.NamingPattern = "{{filename}}.meta.md"
	cfg.Template = "{{filename}}|{{filepath}}|{{extension}}|{{date}}|{{unknown}}"
	asset := writeAsset(t, files, "a/clip.mp4")

	if _, err := st.Create(context.Background(), cfg, asset); err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := files.Read("a/clip.mp4.meta.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := "clip.mp4|a/clip.mp4|mp4|2024-05-17|{{unknown}}"; string(data) != want {
		t.Errorf("content = %q, want %q", data, want)
	}
}

func TestDelete(t *testing.T) {
	st, files, rec := testStore(t)
	ctx := context.Background()
	asset := writeAsset(t, files, "images/photo.png")
	if _, err := st.Create(ctx, DefaultSettings(), asset); err != nil {
		t.Fatal(err)
	}
	_ = files.Delete(asset.Path)

	deleted, err := st.Delete(ctx, DefaultSettings(), asset.Path)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true", deleted, err)
	}
	mustExist(t, files, "images/photo.png.md", false)

	deleted, err = st.Delete(ctx, DefaultSettings(), asset.Path)
	if err != nil || deleted {
		t.Errorf("second Delete = %v, %v; want false, nil", deleted, err)
	}
	if ops := rec.ops(); len(ops) != 2 || ops[1] != "deleted:images/photo.png.md" {
		t.Errorf("journal = %v", ops)
	}
}

func TestDeleteIgnoresNotes(t *testing.T) {
	st, files, _ := testStore(t)
	_ = files.Write("plan.md", []byte("# plan"))
	_ = files.Write("plan.md.md", []byte("# not ours"))

	deleted, err := st.Delete(context.Background(), DefaultSettings(), "plan.md")
	if err != nil || deleted {
		t.Errorf("Delete(note) = %v, %v; want false, nil", deleted, err)
	}
	mustExist(t, files, "plan.md.md", true)
}

func TestDeleteRefusesNonSidecarTarget(t *testing.T) {
	st, files, _ := testStore(t)
	cfg := DefaultSettings()
	// A degenerate pattern that maps assets onto plain notes.
	cfg.NamingPattern = "index.md"
	_ = files.Write("dir/index.md", []byte("# keep me"))

	deleted, err := st.Delete(context.Background(), cfg, "dir/photo.png")
	if err != nil || deleted {
		t.Errorf("Delete = %v, %v; want false, nil", deleted, err)
	}
	mustExist(t, files, "dir/index.md", true)
}

func TestRenameMovesAndRewrites(t *testing.T) {
	st, files, rec := testStore(t)
	ctx := context.Background()
	asset := writeAsset(t, files, "images/photo.png")
	if _, err := st.Create(ctx, DefaultSettings(), asset); err != nil {
		t.Fatal(err)
	}
	if err := files.Move("images/photo.png", "assets/photo.png"); err != nil {
		t.Fatal(err)
	}

	moved, err := st.Rename(ctx, DefaultSettings(), models.FileFromPath("assets/photo.png"), "images/photo.png")
	if err != nil || !moved {
		t.Fatalf("Rename = %v, %v; want true", moved, err)
	}
	mustExist(t, files, "images/photo.png.md", false)
	mustExist(t, files, "assets/photo.png.md", true)

	data, _ := files.Read("assets/photo.png.md")
	if !strings.Contains(string(data), `source: "assets/photo.png"`) {
		t.Errorf("source not rewritten:\n%s", data)
	}
	if strings.Contains(string(data), "images/photo.png") {
		t.Errorf("old path still present:\n%s", data)
	}
	if ops := rec.ops(); len(ops) != 2 || ops[1] != "renamed:assets/photo.png.md" {
		t.Errorf("journal = %v", ops)
	}
}

func TestRenameWithoutSourceFieldStillMoves(t *testing.T) {
	st, files, _ := testStore(t)
	_ = files.Write("a.png.md", []byte("# hand written\nno source here\n"))

	moved, err := st.Rename(context.Background(), DefaultSettings(), models.FileFromPath("b.png"), "a.png")
	if err != nil || !moved {
		t.Fatalf("Rename = %v, %v; want true", moved, err)
	}
	data, err := files.Read("b.png.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "# hand written\nno source here\n" {
		t.Errorf("content changed: %q", data)
	}
}

func TestRenameWithoutSidecarIsNoop(t *testing.T) {
	st, files, rec := testStore(t)
	moved, err := st.Rename(context.Background(), DefaultSettings(), models.FileFromPath("b.png"), "a.png")
	if err != nil || moved {
		t.Errorf("Rename = %v, %v; want false, nil", moved, err)
	}
	mustExist(t, files, "b.png.md", false)
	if n := len(rec.ops()); n != 0 {
		t.Errorf("journal rows = %d, want 0", n)
	}
}

func TestRenameSidecarAlreadyMoved(t *testing.T) {
	st, files, rec := testStore(t)
	_ = files.Write("new/a.png.md", []byte("source: \"old/a.png\"\n"))
	_ = files.Write("new/b.png.md", []byte("source: \"somewhere/else.png\"\n"))
	ctx := context.Background()

	moved, err := st.Rename(ctx, DefaultSettings(), models.FileFromPath("new/a.png"), "old/a.png")
	if err != nil || !moved {
		t.Fatalf("Rename = %v, %v; want true", moved, err)
	}
	data, _ := files.Read("new/a.png.md")
	if string(data) != "source: \"new/a.png\"\n" {
		t.Errorf("content = %q", data)
	}

	moved, err = st.Rename(ctx, DefaultSettings(), models.FileFromPath("new/b.png"), "old/b.png")
	if err != nil || moved {
		t.Errorf("Rename(unrelated sidecar) = %v, %v; want false, nil", moved, err)
	}
	if n := len(rec.ops()); n != 1 {
		t.Errorf("journal rows = %d, want 1", n)
	}
}

func TestRenameIgnoresNotes(t *testing.T) {
	st, files, _ := testStore(t)
	_ = files.Write("old.md.md", []byte("x"))
	moved, err := st.Rename(context.Background(), DefaultSettings(), models.FileFromPath("new.md"), "old.md")
	if err != nil || moved {
		t.Errorf("Rename(note) = %v, %v; want false, nil", moved, err)
	}
	mustExist(t, files, "old.md.md", true)
}

func TestRenameCollisionLeavesOldSidecar(t *testing.T) {
	st, files, _ := testStore(t)
	_ = files.Write("a.png.md", []byte(`source: "a.png"`))
	_ = files.Write("b.png.md", []byte("already here"))

	moved, err := st.Rename(context.Background(), DefaultSettings(), models.FileFromPath("b.png"), "a.png")
	if !errors.Is(err, apperr.ErrAlreadyExists) || moved {
		t.Fatalf("Rename = %v, %v; want ErrAlreadyExists", moved, err)
	}
	a, _ := files.Read("a.png.md")
	b, _ := files.Read("b.png.md")
	if string(a) != `source: "a.png"` || string(b) != "already here" {
		t.Errorf("files changed: a=%q b=%q", a, b)
	}
}

func TestRenameRefusesNonSidecarTargets(t *testing.T) {
	st, files, _ := testStore(t)
	cfg := DefaultSettings()
	// A degenerate pattern that maps assets onto plain notes.
	cfg.NamingPattern = "meta.md"
	_ = files.Write("dir/meta.md", []byte("source: dir/a.png\n"))

	moved, err := st.Rename(context.Background(), cfg, models.FileFromPath("dir/b.png"), "dir/a.png")
	if err != nil || moved {
		t.Fatalf("Rename = %v, %v; want false, nil", moved, err)
	}
	data, _ := files.Read("dir/meta.md")
	if string(data) != "source: dir/a.png\n" {
		t.Errorf("content = %q", data)
	}
}

func TestExtensionlessAssetsHaveNoSidecar(t *testing.T) {
	st, files, rec := testStore(t)
	ctx := context.Background()
	cfg := DefaultSettings()
	license := writeAsset(t, files, "LICENSE")

	created, err := st.Create(ctx, cfg, license)
	if err != nil || created != nil {
		t.Fatalf("Create(LICENSE) = %v, %v; want nil, nil", created, err)
	}
	mustExist(t, files, "LICENSE.md", false)

	// A hand-written README.md is an ordinary note and must not follow or
	// vanish with README.
	_ = files.Write("README.md", []byte("# Project\n"))
	writeAsset(t, files, "docs/README")
	moved, err := st.Rename(ctx, cfg, models.FileFromPath("docs/README"), "README")
	if err != nil || moved {
		t.Errorf("Rename(README) = %v, %v; want false, nil", moved, err)
	}
	mustExist(t, files, "README.md", true)
	mustExist(t, files, "docs/README.md", false)

	deleted, err := st.Delete(ctx, cfg, "README")
	if err != nil || deleted {
		t.Errorf("Delete(README) = %v, %v; want false, nil", deleted, err)
	}
	mustExist(t, files, "README.md", true)

	if _, ok, err := st.Find(ctx, cfg, "README"); err != nil || ok {
		t.Errorf("Find(README) ok = %v, err = %v; want false", ok, err)
	}

	n, err := st.BulkCreate(ctx, cfg, []models.File{license, writeAsset(t, files, "a.png")})
	if err != nil || n != 1 {
		t.Errorf("BulkCreate = %d, %v; want 1", n, err)
	}
	mustExist(t, files, "LICENSE.md", false)
	if ops := rec.ops(); len(ops) != 1 || ops[0] != "created:a.png.md" {
		t.Errorf("journal = %v", ops)
	}
}

// failingMoves rejects every Move.
type failingMoves struct {
	storage.Provider
}

func (failingMoves) Move(oldPath, newPath string) error {
	return errors.New("permission denied")
}

func TestRenameFailedMoveLeavesOldSidecar(t *testing.T) {
	_, files := testutil.TestVault(t)
	st := New(failingMoves{Provider: files}, WithLogger(testutil.Logger()))
	original := "---\nsource: \"a.png\"\n---\n"
	_ = files.Write("a.png.md", []byte(original))

	moved, err := st.Rename(context.Background(), DefaultSettings(), models.FileFromPath("sub/a.png"), "a.png")
	if err == nil || moved {
		t.Fatalf("Rename = %v, %v; want error", moved, err)
	}
	data, _ := files.Read("a.png.md")
	if string(data) != original {
		t.Errorf("old sidecar changed to %q", data)
	}
	mustExist(t, files, "sub/a.png.md", false)
}

func TestBulkCreate(t *testing.T) {
	st, files, _ := testStore(t)
	ctx := context.Background()
	for _, p := range []string{"a.png", "img/b.jpg", "img/c.pdf", "docs/d.pdf"} {
		writeAsset(t, files, p)
	}
	_ = files.Write("note.md", []byte("# note"))
	_ = files.Write("docs/d.pdf.md", []byte("existing"))

	list, err := files.List("")
	if err != nil {
		t.Fatal(err)
	}
	n, err := st.BulkCreate(ctx, DefaultSettings(), list)
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if n != 3 {
		t.Errorf("created = %d, want 3", n)
	}
	for _, p := range []string{"a.png.md", "img/b.jpg.md", "img/c.pdf.md"} {
		mustExist(t, files, p, true)
	}
	mustExist(t, files, "note.md.md", false)
	mustExist(t, files, "docs/d.pdf.md.md", false)
	data, _ := files.Read("docs/d.pdf.md")
	if string(data) != "existing" {
		t.Errorf("existing sidecar overwritten: %q", data)
	}

	list, _ = files.List("")
	n, err = st.BulkCreate(ctx, DefaultSettings(), list)
	if err != nil || n != 0 {
		t.Errorf("second BulkCreate = %d, %v; want 0", n, err)
	}
}

func TestBulkCreateRespectsScope(t *testing.T) {
	st, files, _ := testStore(t)
	for _, p := range []string{"notes/x.png", "notes/sub/y.png", "other/z.png"} {
		writeAsset(t, files, p)
	}
	cfg := DefaultSettings()
	cfg.WatchedFolders = "notes"

	list, _ := files.List("")
	n, err := st.BulkCreate(context.Background(), cfg, list)
	if err != nil || n != 2 {
		t.Fatalf("BulkCreate = %d, %v; want 2", n, err)
	}
	mustExist(t, files, "other/z.png.md", false)
}

func TestBulkCreateMany(t *testing.T) {
	st, files, _ := testStore(t)
	var list []models.File
	for i := range 50 {
		list = append(list, writeAsset(t, files, fmt.Sprintf("bulk/%02d.png", i)))
	}
	cfg := DefaultSettings()
	cfg.BulkWorkers = 8

	n, err := st.BulkCreate(context.Background(), cfg, list)
	if err != nil || n != 50 {
		t.Fatalf("BulkCreate = %d, %v; want 50", n, err)
	}
}

// failingCreates rejects Create for selected paths.
type failingCreates struct {
	storage.Provider
	fail map[string]bool
}

func (f failingCreates) Create(path string, content []byte) error {
	if f.fail[path] {
		return errors.New("permission denied")
	}
	return f.Provider.Create(path, content)
}

func TestBulkCreateContinuesPastFailures(t *testing.T) {
	_, files := testutil.TestVault(t)
	st := New(failingCreates{Provider: files, fail: map[string]bool{"b.png.md": true}}, WithLogger(testutil.Logger()))
	var list []models.File
	for _, p := range []string{"a.png", "b.png", "c.png"} {
		list = append(list, writeAsset(t, files, p))
	}

	n, err := st.BulkCreate(context.Background(), DefaultSettings(), list)
	if n != 2 {
		t.Errorf("created = %d, want 2", n)
	}
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("err = %v, want joined permission error", err)
	}
}

func TestFind(t *testing.T) {
	st, files, _ := testStore(t)
	ctx := context.Background()
	p, ok, err := st.Find(ctx, DefaultSettings(), "x.png")
	if err != nil || ok || p != "x.png.md" {
		t.Errorf("Find = %q, %v, %v", p, ok, err)
	}
	_ = files.Write("x.png.md", []byte("x"))
	if _, ok, _ := st.Find(ctx, DefaultSettings(), "x.png"); !ok {
		t.Error("Find should see existing sidecar")
	}
}
