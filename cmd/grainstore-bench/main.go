// Command grainstore-bench is a YCSB-style load generator: each worker
// goroutine repeatedly draws a Zipf-distributed key and issues a get or
// put against a running grainstore-server, until a fixed duration
// elapses, then the run reports aggregate throughput. Grounded on
// original_source/db/src/bin/client/ycsb.rs's Ycsb::new/abc/stop shape
// (key_len/value_len/n_keys/put_pct/skew parameters, one thread per
// worker sharing a single "done" flag, (duration, gets, puts) per
// worker reduced to one throughput figure) — reimplemented as Go
// goroutines wired directly against grainstore's UDP wire protocol
// instead of Rust threads calling function-pointer get/put.
package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grainstore-bench",
	Short: "YCSB-style load generator for a grainstore server",
	RunE:  runBench,
}

func init() {
	f := rootCmd.Flags()
	f.String("addr", "127.0.0.1:7070", "grainstore server UDP address")
	f.Uint64("tenant", 1, "tenant id to issue requests against")
	f.Uint64("table", 1, "table id to issue requests against")
	f.Int("key-len", 64, "key length in bytes (must match the server's deployment KeyLen)")
	f.Int("value-len", 1024, "value length in bytes (must match the server's deployment ValLen)")
	f.Uint64("keys", 1_000_000, "number of distinct keys the workload draws from")
	f.Int("put-pct", 5, "percentage of operations that are puts (YCSB A=50, B=5, C=0)")
	f.Float64("skew", 0.99, "Zipfian skew parameter (YCSB default 0.99)")
	f.Int("threads", 8, "number of concurrent worker goroutines")
	f.Duration("duration", 10*time.Second, "how long to run the workload")
}

func runBench(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	tenant, _ := cmd.Flags().GetUint64("tenant")
	table, _ := cmd.Flags().GetUint64("table")
	keyLen, _ := cmd.Flags().GetInt("key-len")
	valueLen, _ := cmd.Flags().GetInt("value-len")
	nKeys, _ := cmd.Flags().GetUint64("keys")
	putPct, _ := cmd.Flags().GetInt("put-pct")
	skew, _ := cmd.Flags().GetFloat64("skew")
	threads, _ := cmd.Flags().GetInt("threads")
	duration, _ := cmd.Flags().GetDuration("duration")

	fmt.Printf("grainstore-bench: %d threads, %d keys, %d%% puts, skew %.2f, against %s\n",
		threads, nKeys, putPct, skew, addr)

	y := &ycsb{
		addr:     addr,
		tenant:   types.TenantId(tenant),
		table:    types.TableId(table),
		keyLen:   keyLen,
		valueLen: valueLen,
		nKeys:    nKeys,
		putPct:   putPct,
		skew:     skew,
	}

	var wg sync.WaitGroup
	results := make([]workerResult, threads)
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = y.abc(idx)
		}(i)
	}

	time.Sleep(duration)
	atomic.StoreUint32(&y.done, 1)
	wg.Wait()

	var maxElapsed time.Duration
	var totalGets, totalPuts uint64
	for _, r := range results {
		if r.elapsed > maxElapsed {
			maxElapsed = r.elapsed
		}
		totalGets += r.gets
		totalPuts += r.puts
	}
	secs := maxElapsed.Seconds()
	fmt.Printf("%d threads: %.0f gets/s %.0f puts/s %.0f ops/s\n",
		threads, float64(totalGets)/secs, float64(totalPuts)/secs, float64(totalGets+totalPuts)/secs)
	return nil
}

// ycsb mirrors the parameters and run shape of the original Ycsb struct:
// a workload instance shared by many worker goroutines, each running
// until done is set.
type ycsb struct {
	addr     string
	tenant   types.TenantId
	table    types.TableId
	keyLen   int
	valueLen int
	nKeys    uint64
	putPct   int
	skew     float64

	done uint32
}

type workerResult struct {
	elapsed time.Duration
	gets    uint64
	puts    uint64
}

// abc runs one worker's get/put loop until the shared done flag is set,
// named for YCSB workloads A/B/C which this one workload, parameterized
// by putPct, covers (A: 50% puts, B: 5% puts, C: 0% puts).
func (y *ycsb) abc(workerIdx int) workerResult {
	conn, err := net.Dial("udp", y.addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker %d: dial %s: %v\n", workerIdx, y.addr, err)
		return workerResult{}
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerIdx)))
	// math/rand's Zipf generates values in [0, imax] with P(k) proportional
	// to 1/(k+1)^s and requires s > 1, so s is set to 1+skew (the YCSB
	// default skew of 0.99 gives s = 1.99).
	zipf := rand.NewZipf(rng, 1+y.skew, 1, y.nKeys-1)

	keyBuf := make([]byte, y.keyLen)
	valueBuf := make([]byte, y.valueLen)
	respBuf := make([]byte, 64*1024)

	var stamp uint64
	var gets, puts uint64
	start := time.Now()

	for atomic.LoadUint32(&y.done) == 0 {
		stamp++
		k := uint32(zipf.Uint64())
		binary.BigEndian.PutUint32(keyBuf[:4], k)

		isGet := rng.Intn(100) >= y.putPct

		var req *wire.Request
		if isGet {
			req = &wire.Request{
				Opcode: types.OpGet, Stamp: stamp, Tenant: y.tenant,
				TableID: y.table, KeyLength: uint16(y.keyLen), Payload: keyBuf,
			}
		} else {
			payload := make([]byte, 0, y.keyLen+y.valueLen)
			payload = append(payload, keyBuf...)
			payload = append(payload, valueBuf...)
			req = &wire.Request{
				Opcode: types.OpPut, Stamp: stamp, Tenant: y.tenant,
				TableID: y.table, KeyLength: uint16(y.keyLen), Payload: payload,
			}
		}

		if _, err := conn.Write(wire.EncodeRequest(req)); err != nil {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(respBuf)
		if err != nil {
			continue
		}
		if _, err := wire.DecodeResponse(respBuf[:n]); err != nil {
			continue
		}

		if isGet {
			gets++
		} else {
			puts++
		}
	}

	return workerResult{elapsed: time.Since(start), gets: gets, puts: puts}
}
