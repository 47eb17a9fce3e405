package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"eeg-forge/internal/autograd"
	"eeg-forge/internal/model"
)

// Loader yields the batches of one epoch. Each Iterate call is one pass.
type Loader interface {
	Iterate(ctx context.Context, fn func(model.Batch) error) error
}

// Memory serves batches from an in-memory tensor of shape (N, ...).
type Memory struct {
	inputs    *autograd.Tensor
	labels    []int
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewMemory returns a loader over inputs. labels may be nil; otherwise it
// needs one entry per example. With shuffle the order is reshuffled every
// epoch from seed.
func NewMemory(inputs *autograd.Tensor, labels []int, batchSize int, shuffle bool, seed int64) (*Memory, error) {
	if inputs == nil || inputs.Dims() < 2 {
		return nil, fmt.Errorf("%w: memory loader needs inputs of rank >= 2", autograd.ErrShapeMismatch)
	}
	if labels != nil && len(labels) != inputs.Rows() {
		return nil, fmt.Errorf("%w: %d labels for %d examples", autograd.ErrShapeMismatch, len(labels), inputs.Rows())
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("memory loader: batch size must be > 0 (got %d)", batchSize)
	}
	return &Memory{
		inputs:    inputs,
		labels:    labels,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// Iterate calls fn for every batch; the last batch may be short.
func (m *Memory) Iterate(ctx context.Context, fn func(model.Batch) error) error {
	n := m.inputs.Rows()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if m.shuffle {
		m.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	sampleShape := m.inputs.Shape()[1:]
	width := m.inputs.Len() / n
	src := m.inputs.Data()
	for lo := 0; lo < n; lo += m.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		hi := min(lo+m.batchSize, n)
		data := make([]float64, 0, (hi-lo)*width)
		var labels []int
		for _, idx := range order[lo:hi] {
			data = append(data, src[idx*width:(idx+1)*width]...)
			if m.labels != nil {
				labels = append(labels, m.labels[idx])
			}
		}
		inputs, err := autograd.New(data, append([]int{hi - lo}, sampleShape...)...)
		if err != nil {
			return err
		}
		if err := fn(model.Batch{Inputs: inputs, Labels: labels}); err != nil {
			return err
		}
	}
	return nil
}

// ShardOptions configures a ShardLoader.
type ShardOptions struct {
	Roots      map[string][]string
	BatchSize  int
	NumWorkers int
	Seed       int64
	PendingCap int
	// Shape, when set, rejects recordings of any other shape.
	Shape []int
}

// ShardLoader batches one pass over a set of shard roots per epoch. The
// shard order is reshuffled every epoch.
type ShardLoader struct {
	opts  ShardOptions
	epoch int64
}

// NewShardLoader validates opts.
func NewShardLoader(opts ShardOptions) (*ShardLoader, error) {
	if len(opts.Roots) == 0 {
		return nil, errors.New("shard loader: no dataset roots provided")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("shard loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	return &ShardLoader{opts: opts}, nil
}

// Iterate streams one pass of every shard and calls fn per collated batch.
func (l *ShardLoader) Iterate(ctx context.Context, fn func(model.Batch) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, errs, err := StartSampler(ctx, SamplerOptions{
		Roots:      l.opts.Roots,
		Seed:       l.opts.Seed + l.epoch + 1,
		NumWorkers: l.opts.NumWorkers,
		PendingCap: l.opts.PendingCap,
		Passes:     1,
		Shape:      l.opts.Shape,
	})
	if err != nil {
		return err
	}
	l.epoch++

	for {
		batch, done, err := nextBatch(ctx, samples, errs, l.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			collated, err := Collate(batch)
			if err != nil {
				return err
			}
			if err := fn(collated); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
	}
}

// nextBatch gathers up to batchSize samples. done reports the end of the
// stream; the final batch may be short.
func nextBatch(ctx context.Context, samples <-chan Sample, errs <-chan error, batchSize int) ([]Sample, bool, error) {
	batch := make([]Sample, 0, batchSize)
	for len(batch) < batchSize {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, false, err
			}
			if !ok {
				errs = nil
			}
		case sample, ok := <-samples:
			if !ok {
				if errs != nil {
					for err := range errs {
						if err != nil {
							return nil, false, err
						}
					}
				}
				return batch, true, nil
			}
			batch = append(batch, sample)
		}
	}
	return batch, false, nil
}
