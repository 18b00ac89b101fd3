// Command handletable-demo exercises internal/handletable under concurrent
// load: N writer goroutines registering/removing handles against M reader
// goroutines doing lookups, reporting throughput and the writer-preferring
// lock's behavior under contention. The engine itself never imports this
// package; it exists only to demonstrate and benchmark the ancillary on its
// own.
package main

import (
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbourd/ioengine/internal/handletable"
)

func main() {
	var (
		writers  = flag.Int("writers", 4, "Number of concurrent writer goroutines")
		readers  = flag.Int("readers", 16, "Number of concurrent reader goroutines")
		duration = flag.Duration("duration", 3*time.Second, "How long to run the load")
	)
	flag.Parse()

	t := handletable.New()
	stop := make(chan struct{})

	var writes, reads, hits uint64

	var wg sync.WaitGroup
	for i := 0; i < *writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			owner := fmt.Sprintf("writer-%d", id)
			for {
				select {
				case <-stop:
					return
				default:
					h := t.Register(owner)
					atomic.AddUint64(&writes, 1)
					t.Remove(h)
				}
			}
		}(i)
	}

	for i := 0; i < *readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					if _, ok := t.Lookup(1); ok {
						atomic.AddUint64(&hits, 1)
					}
					atomic.AddUint64(&reads, 1)
				}
			}
		}()
	}

	time.Sleep(*duration)
	close(stop)
	wg.Wait()

	elapsed := duration.Seconds()
	fmt.Printf("writers=%d readers=%d duration=%s\n", *writers, *readers, *duration)
	fmt.Printf("writes=%d (%.0f/s) reads=%d (%.0f/s) hits=%d final_len=%d\n",
		writes, float64(writes)/elapsed, reads, float64(reads)/elapsed, hits, t.Len())
}
