package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"eeg-forge/internal/autograd"
)

// SamplerOptions configures the multi-root sampler.
type SamplerOptions struct {
	Roots      map[string][]string
	Seed       int64
	NumWorkers int
	PendingCap int
	// Passes bounds how many times every shard is visited. Zero repeats
	// forever; the sample channel closes after the last pass.
	Passes int
	// Shape, when set, is the array shape every recording must have.
	Shape []int
}

func (o *SamplerOptions) normalize() error {
	if len(o.Roots) == 0 {
		return errors.New("sampler: no dataset roots provided")
	}
	shards := 0
	for _, paths := range o.Roots {
		shards += len(paths)
	}
	if shards == 0 {
		return errors.New("sampler: no shards discovered")
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 1
	}
	if o.PendingCap <= 0 {
		o.PendingCap = defaultPendingCap
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return nil
}

// StartSampler launches the multi-root sampler pipeline. Shards are opened
// concurrently by NumWorkers workers and their recordings are merged back in
// job order, so a fixed seed yields a fixed stream.
func StartSampler(parent context.Context, opts SamplerOptions) (<-chan Sample, <-chan error, error) {
	if err := opts.normalize(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	p := &pipeline{
		opts:    opts,
		jobs:    make(chan shardJob, opts.NumWorkers),
		cursors: make(chan shardCursor, opts.NumWorkers),
		out:     make(chan Sample, opts.NumWorkers*2),
		errs:    make(chan error, 1),
	}

	go p.produce(ctx, rand.New(rand.NewSource(opts.Seed)))

	var wg sync.WaitGroup
	wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(p.cursors)
	}()

	go func() {
		defer cancel()
		defer close(p.out)
		defer close(p.errs)
		if err := p.merge(ctx); err != nil {
			p.errs <- err
		}
	}()

	return p.out, p.errs, nil
}

type pipeline struct {
	opts    SamplerOptions
	jobs    chan shardJob
	cursors chan shardCursor
	out     chan Sample
	errs    chan error
}

type shardJob struct {
	id   int64
	pass int
	root string
	path string
}

type shardCursor struct {
	shardJob
	samples <-chan Sample
	errCh   <-chan error
}

// produce enqueues one round-robin order per pass and closes jobs when done.
func (p *pipeline) produce(ctx context.Context, rng *rand.Rand) {
	defer close(p.jobs)
	var id int64
	for pass := 0; p.opts.Passes <= 0 || pass < p.opts.Passes; pass++ {
		for _, entry := range buildRoundRobinOrder(p.opts.Roots, rng) {
			select {
			case <-ctx.Done():
				return
			case p.jobs <- shardJob{id: id, pass: pass, root: entry.root, path: entry.path}:
				id++
			}
		}
	}
}

// work opens shards as jobs arrive; reading starts before the merger needs it.
func (p *pipeline) work(ctx context.Context) {
	for job := range p.jobs {
		samples, errCh := StreamShard(ctx, job.path, p.opts.PendingCap)
		select {
		case <-ctx.Done():
			return
		case p.cursors <- shardCursor{shardJob: job, samples: samples, errCh: errCh}:
		}
	}
}

// merge forwards shard streams in job id order, parking cursors that finish
// opening early.
func (p *pipeline) merge(ctx context.Context) error {
	parked := make(map[int64]shardCursor)
	for next := int64(0); ; next++ {
		cur, ok := parked[next]
		for !ok {
			select {
			case <-ctx.Done():
				return nil
			case c, open := <-p.cursors:
				if !open {
					return nil
				}
				if c.id == next {
					cur, ok = c, true
				} else {
					parked[c.id] = c
				}
			}
		}
		delete(parked, next)
		if err := p.forward(ctx, cur); err != nil {
			return err
		}
	}
}

func (p *pipeline) forward(ctx context.Context, cur shardCursor) error {
	for sample := range cur.samples {
		if p.opts.Shape != nil && !sameShape(sample.EEG.Shape, p.opts.Shape) {
			return fmt.Errorf("%w: recording %s in %s has shape %v, want %v",
				autograd.ErrShapeMismatch, sample.Key, cur.path, sample.EEG.Shape, p.opts.Shape)
		}
		select {
		case <-ctx.Done():
			return nil
		case p.out <- sample:
		}
	}
	if err := <-cur.errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type orderEntry struct {
	root string
	path string
}

// buildRoundRobinOrder shuffles every root's shards and interleaves them one
// per root at a time. Roots are visited in sorted order so the rng is
// consumed identically for a given seed.
func buildRoundRobinOrder(roots map[string][]string, rng *rand.Rand) []orderEntry {
	names := make([]string, 0, len(roots))
	for root, shards := range roots {
		if len(shards) > 0 {
			names = append(names, root)
		}
	}
	sort.Strings(names)

	queues := make([][]string, len(names))
	depth := 0
	for i, root := range names {
		q := append([]string(nil), roots[root]...)
		if rng != nil {
			rng.Shuffle(len(q), func(a, b int) { q[a], q[b] = q[b], q[a] })
		}
		queues[i] = q
		depth = max(depth, len(q))
	}

	order := make([]orderEntry, 0, len(names)*depth)
	for d := 0; d < depth; d++ {
		for i, q := range queues {
			if d < len(q) {
				order = append(order, orderEntry{root: names[i], path: q[d]})
			}
		}
	}
	return order
}
