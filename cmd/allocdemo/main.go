// Command allocdemo exercises allocate, zero_allocate, resize, and release
// against a freshly constructed allocator and reports the outcome of each
// call.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/brkheap/allocator/alloc"
	"github.com/brkheap/allocator/internal/allocerr"
	"github.com/brkheap/allocator/internal/config"
)

func main() {
	threshold := flag.Int("mmap-threshold", 0, "override the heap/mapping threshold in bytes (0 keeps the default)")
	flag.Parse()

	opts := []config.Option{}
	if *threshold > 0 {
		opts = append(opts, config.WithMmapThreshold(*threshold))
	}
	al := alloc.New(opts...)

	p := al.Allocate(100)
	if p == nil {
		fmt.Fprintln(os.Stderr, allocerr.New("allocate", allocerr.KindExhausted, 100))
		os.Exit(1)
	}
	fmt.Println("allocate(100) ok")

	q := al.Resize(p, 256)
	fmt.Printf("resize(p, 256) -> %v (moved=%v)\n", q != nil, q != p)

	z := al.ZeroAllocate(8, 32)
	fmt.Printf("zero_allocate(8, 32) -> %v\n", z != nil)

	al.Release(q)
	al.Release(z)
	fmt.Println("release ok")
}
