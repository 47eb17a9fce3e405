package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one EEG recording paired with its class label.
type Sample struct {
	Key   string
	EEG   Array
	Label int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams samples from the shard at path. A shard is a tar
// archive holding <key>.npy signal arrays and <key>.cls integer labels; the
// two members of a key may appear in either order.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open shard: %w", err)
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar: %w", err)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			switch ext {
			case ".npy":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read signal %s: %w", name, err)
					return
				}
				arr, err := decodeNPYBytes(payload)
				if err != nil {
					errCh <- fmt.Errorf("decode signal %s: %w", name, err)
					return
				}
				pendingFor(pending, key).eeg = &arr
			case ".cls":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read label %s: %w", name, err)
					return
				}
				label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- fmt.Errorf("parse label %s: %w", name, err)
					return
				}
				pendingFor(pending, key).label = &label
			default:
				continue
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part := pending[key]; part.ready() {
				sample := Sample{Key: key, EEG: *part.eeg, Label: *part.label}
				delete(pending, key)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- fmt.Errorf("%s: %d samples incomplete", filepath.Base(path), len(pending))
		}
	}()

	return out, errCh
}

// FirstSample returns the first complete sample of the shard at path.
func FirstSample(ctx context.Context, path string) (Sample, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, errCh := StreamShard(ctx, path, 0)
	sample, ok := <-samples
	if ok {
		return sample, nil
	}
	if err := <-errCh; err != nil {
		return Sample{}, err
	}
	return Sample{}, fmt.Errorf("%s: shard holds no samples", filepath.Base(path))
}

type partial struct {
	eeg   *Array
	label *int
}

func pendingFor(pending map[string]*partial, key string) *partial {
	part := pending[key]
	if part == nil {
		part = &partial{}
		pending[key] = part
	}
	return part
}

func (p *partial) ready() bool {
	return p.eeg != nil && p.label != nil
}
