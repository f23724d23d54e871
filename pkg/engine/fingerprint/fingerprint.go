// Package fingerprint computes content digests for extracted components.
// A bounded worker pool hashes each component's backing file once; results
// are re-attached by identity at the fan-in barrier, so completion order
// never shows in the output.
package fingerprint

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Pool is the hashing worker pool. The zero value hashes with one worker
// per CPU and reports no progress.
type Pool struct {
	// Workers bounds concurrency; <= 0 means runtime.NumCPU().
	Workers int

	// Progress, when set, is called after each completed file. It may be
	// called from multiple goroutines.
	Progress func(done, total int, current string)
}

type outcome struct {
	id     string
	sums   []sbom.Checksum
	errMsg string
}

// Run hashes every component that has a backing source path and no
// checksum yet, attaching SHA1 and SHA256 digests in place. Unreadable
// backing bytes mark the component instead of failing the batch. The
// only returned error is context cancellation.
func (p *Pool) Run(ctx context.Context, comps []sbom.Component) error {
	ctx, span := otel.Tracer("xlin-sbom/fingerprint").Start(ctx, "Fingerprint.Run")
	defer span.End()

	var pending []int
	for i := range comps {
		if comps[i].SourcePath != "" && len(comps[i].Checksums) == 0 {
			pending = append(pending, i)
		}
	}
	span.SetAttributes(attribute.Int("pending", len(pending)))
	if len(pending) == 0 {
		return ctx.Err()
	}

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan int)
	batches := make([][]outcome, workers)
	var done atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var batch []outcome
			for idx := range jobs {
				c := &comps[idx]
				out := outcome{id: c.ID}
				sums, err := hashFile(c.SourcePath)
				if err != nil {
					out.errMsg = err.Error()
				} else {
					out.sums = sums
				}
				batch = append(batch, out)
				if p.Progress != nil {
					p.Progress(int(done.Add(1)), len(pending), c.SourcePath)
				}
			}
			batches[w] = batch
		}()
	}

	// Dispatch until done or cancelled; workers drain whatever was sent.
dispatch:
	for _, idx := range pending {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	byID := make(map[string]outcome, len(pending))
	for _, batch := range batches {
		for _, out := range batch {
			byID[out.id] = out
		}
	}
	for i := range comps {
		out, ok := byID[comps[i].ID]
		if !ok {
			continue
		}
		if out.errMsg != "" {
			comps[i].FingerprintErr = out.errMsg
			continue
		}
		comps[i].Checksums = out.sums
	}
	return nil
}

// hashFile reads the file once, feeding both digests. SHA1 comes first in
// the result; downstream renderers treat it as the primary content hash.
func hashFile(path string) ([]sbom.Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h1 := sha1.New()
	h256 := sha256.New()
	if _, err := io.Copy(io.MultiWriter(h1, h256), f); err != nil {
		return nil, err
	}
	return []sbom.Checksum{
		{Algorithm: "SHA1", Digest: hex.EncodeToString(h1.Sum(nil))},
		{Algorithm: "SHA256", Digest: hex.EncodeToString(h256.Sum(nil))},
	}, nil
}
