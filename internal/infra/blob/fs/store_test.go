package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"pharmacore/internal/blob/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	payload := []byte("fake-jpeg-bytes")
	info, err := store.Put(ctx, "prescriptions/20250601T080000-ab12cd34.jpg", bytes.NewReader(payload), core.PutOptions{ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(payload)) || info.ContentType != "image/jpeg" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, rc, err := store.Get(ctx, "prescriptions/20250601T080000-ab12cd34.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("payload mismatch: %q", data)
	}
	if got.ContentType != "image/jpeg" {
		t.Fatalf("content type lost: %+v", got)
	}
}

func TestPutRejectsDuplicateKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "a.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "a.jpg", bytes.NewReader([]byte("y")), core.PutOptions{}); err == nil {
		t.Fatal("duplicate put should fail")
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape.jpg", "/abs.jpg", "a/../../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Get(context.Background(), "missing.jpg"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"prescriptions/a.jpg", "prescriptions/b.jpg", "other/c.jpg"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "prescriptions/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "prescriptions/a.jpg" || infos[1].Key != "prescriptions/b.jpg" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}

func TestDelete(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "a.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := store.Delete(ctx, "a.jpg")
	if err != nil || !ok {
		t.Fatalf("delete existing = %v, %v", ok, err)
	}
	ok, err = store.Delete(ctx, "a.jpg")
	if err != nil || ok {
		t.Fatalf("delete missing = %v, %v", ok, err)
	}
}
