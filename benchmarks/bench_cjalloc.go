package benchmarks

import (
	"fmt"
	"os"
	"testing"

	"github.com/cjalloc/cjalloc"
	"github.com/cjalloc/cjalloc/internal/arena"
	bolt "go.etcd.io/bbolt"
)

// Sizes exercised across both the allocator and the bbolt baseline,
// grounded on the teacher's BenchmarkDBSizes size ladder (bench_sizes_test.go).
var benchAllocSizes = []uint32{64, 512, 4096, 65536}

// BenchmarkAllocFree compares cjalloc's Alloc/Free churn at each size class
// against bbolt's own page-allocation path (growing and shrinking a
// bucket via repeated Update transactions) — the same throughput-vs-
// throughput comparison the teacher runs one layer up (gdbx vs mdbx-go,
// gdbx vs bbolt), ported down one layer: allocator vs. the allocator
// embedded inside a comparable pure-Go engine.
func BenchmarkAllocFree(b *testing.B) {
	for _, size := range benchAllocSizes {
		name := fmt.Sprintf("%dB", size)
		b.Run("cjalloc_"+name, func(b *testing.B) {
			benchmarkCjallocAllocFree(b, size)
		})
		b.Run("bbolt_"+name, func(b *testing.B) {
			benchmarkBoltPageChurn(b, int(size))
		})
	}
}

func benchmarkCjallocAllocFree(b *testing.B, size uint32) {
	const windowSize = 64 * 1024 * 1024
	near, err := arena.New(windowSize)
	if err != nil {
		b.Fatal(err)
	}
	defer near.Close()

	a := cjalloc.New()
	nearBytes := near.Bytes()
	if err := a.Configure(0, nearBytes, 0, nil, 0); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		addr, ok := a.Alloc(size, cjalloc.Near)
		if !ok {
			b.Fatal("allocator exhausted")
		}
		a.Free(addr)
	}
}

// benchmarkBoltPageChurn exercises bbolt's bucket growth/shrink path as a
// baseline for "how much does removing buddy-system indirection save":
// each iteration puts and then deletes one size-byte value, forcing bbolt
// to allocate and reclaim its own backing pages the same way cjalloc
// allocates and frees a subarea.
func benchmarkBoltPageChurn(b *testing.B, size int) {
	dir, err := os.MkdirTemp("", "cjalloc-bench-bolt")
	if err != nil {
		b.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := bolt.Open(dir+"/bench.db", 0600, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	bucketName := []byte("churn")
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		b.Fatal(err)
	}

	value := make([]byte, size)
	key := []byte("k")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.Update(func(tx *bolt.Tx) error {
			bkt := tx.Bucket(bucketName)
			if err := bkt.Put(key, value); err != nil {
				return err
			}
			return bkt.Delete(key)
		}); err != nil {
			b.Fatal(err)
		}
	}
}
