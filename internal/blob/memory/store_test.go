package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"bomcore/internal/blob/core"
)

func TestPutIsCreateOnly(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); err == nil {
		t.Fatalf("expected second put to fail")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("payload"), core.PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"a": "b"},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" {
		t.Fatalf("payload %q", data)
	}
	if info.ContentType != "text/plain" || info.Size != 7 {
		t.Fatalf("unexpected info: %+v", info)
	}
	// Mutating the returned metadata must not touch stored state.
	info.Metadata["a"] = "changed"
	again, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if again.Metadata["a"] != "b" {
		t.Fatalf("stored metadata aliased: %+v", again.Metadata)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if existed, _ := store.Delete(ctx, "k"); !existed {
		t.Fatalf("expected delete to report existence")
	}
	if existed, _ := store.Delete(ctx, "k"); existed {
		t.Fatalf("second delete reported existence")
	}
}

func TestListFiltersPrefixInKeyOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, key := range []string{"b/two", "a/one", "b/one"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "b/one" || infos[1].Key != "b/two" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}

func TestPresignURLUnsupported(t *testing.T) {
	store := New()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
