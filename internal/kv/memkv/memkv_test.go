package memkv

import (
	"testing"

	"github.com/chainkit/node/internal/kv"
)

func TestPutGetDelete(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok, err := s.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want ok=false", ok, err)
	}

	if err := s.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := s.Get([]byte("key"))
	if err != nil || !ok || string(v) != "value" {
		t.Fatalf("Get(key) = %q ok=%v err=%v, want value", v, ok, err)
	}

	if err := s.Delete([]byte("key")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get([]byte("key")); ok {
		t.Fatal("Get after Delete still found the key")
	}
}

func TestGetReturnsACopyNotTheBackingSlice(t *testing.T) {
	s, _ := Open("")
	if err := s.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, _, _ := s.Get([]byte("key"))
	v[0] = 'V'

	v2, _, _ := s.Get([]byte("key"))
	if string(v2) != "value" {
		t.Errorf("mutating a Get result corrupted the store: got %q, want value", v2)
	}
}

func TestBatchAppliesOpsInOrder(t *testing.T) {
	s, _ := Open("")
	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ops := []kv.Op{
		kv.PutOp([]byte("a"), []byte("2")),
		kv.PutOp([]byte("b"), []byte("1")),
		kv.DeleteOp([]byte("a")),
	}
	if err := s.Batch(ops); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	if _, ok, _ := s.Get([]byte("a")); ok {
		t.Error("key a should have been deleted by the later op in the same batch")
	}
	if v, ok, _ := s.Get([]byte("b")); !ok || string(v) != "1" {
		t.Errorf("key b = %q ok=%v, want 1/true", v, ok)
	}
}

func TestScanYieldsLexicographicOrderWithinPrefix(t *testing.T) {
	s, _ := Open("")
	for _, k := range []string{"account:b", "account:a", "account:c", "block:1"} {
		if err := s.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	iter, err := s.Scan([]byte("account:"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer iter.Release()

	var got []string
	for iter.Next() {
		got = append(got, string(iter.Key()))
	}
	want := []string{"account:a", "account:b", "account:c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
