package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestArchive_UploadAndGet(t *testing.T) {
	a := TestArchive(t, "artifacts", "run-1")
	ctx := context.Background()

	key, err := a.Upload(ctx, "shot.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if key != "run-1/shot.png" {
		t.Errorf("key = %q", key)
	}
	got, err := a.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "png-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestArchive_GetMissing(t *testing.T) {
	a := TestArchive(t, "artifacts", "run-1")

	_, err := a.Get(context.Background(), "run-1/missing.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestArchive_UploadFileAndList(t *testing.T) {
	a := TestArchive(t, "artifacts", "run-2")
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"a.png", "b.png"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := a.UploadFile(ctx, path); err != nil {
			t.Fatalf("UploadFile(%s): %v", name, err)
		}
	}

	keys, err := a.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "run-2/a.png" || keys[1] != "run-2/b.png" {
		t.Errorf("keys = %v", keys)
	}
}

func TestArchive_UploadFileMissing(t *testing.T) {
	a := TestArchive(t, "artifacts", "run-3")

	if _, err := a.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestArchive_KeyIsScopedToRun(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		runID := rapid.StringMatching(`[a-f0-9]{8}`).Draw(rt, "run")
		name := rapid.StringMatching(`/{0,2}[A-Za-z0-9_]{1,20}\.png`).Draw(rt, "name")
		a := NewFromS3Client(nil, "bucket", "/"+runID+"/", "")

		key := a.Key(name)
		if !strings.HasPrefix(key, runID+"/") {
			rt.Fatalf("key %q not under run %q", key, runID)
		}
		if strings.Contains(key, "//") {
			rt.Fatalf("key %q has an empty segment", key)
		}
	})
}

func TestNew_RequiresBucketAndRun(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{RunID: "r"}); err == nil {
		t.Error("expected error without bucket")
	}
	if _, err := New(ctx, Config{BucketName: "b"}); err == nil {
		t.Error("expected error without run id")
	}
}
