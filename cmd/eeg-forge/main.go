package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/config"
	"eeg-forge/internal/dataset"
	"eeg-forge/internal/metrics"
	"eeg-forge/internal/model"
	"eeg-forge/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "configs/eeg.yaml", "Path to YAML config")
	trainRoots := flag.String("train-roots", "", "Comma separated training roots")
	valRoots := flag.String("val-roots", "", "Comma separated validation roots")
	testRoots := flag.String("test-roots", "", "Comma separated test roots")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	numWorkers := flag.Int("num-workers", 0, "Number of data loader workers")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	maxEpochs := flag.Int("max-epochs", 0, "Number of epochs")
	accelerator := flag.String("accelerator", "", "Compute accelerator (cpu)")
	metricsDB := flag.String("metrics-db", "", "SQLite file receiving epoch metrics")
	logLevel := flag.String("log-level", "", "Log level")

	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(config.Overrides{
		TrainRoots:  config.SplitList(*trainRoots),
		ValRoots:    config.SplitList(*valRoots),
		TestRoots:   config.SplitList(*testRoots),
		BatchSize:   *batchSize,
		NumWorkers:  *numWorkers,
		Seed:        *seed,
		LogEvery:    *logEvery,
		MaxEpochs:   *maxEpochs,
		Accelerator: *accelerator,
		MetricsDB:   *metricsDB,
		LogLevel:    *logLevel,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	trainRoots, trainShards, err := discover(cfg.TrainRoots, log)
	if err != nil {
		return err
	}
	first, err := dataset.FirstSample(ctx, trainShards[0])
	if err != nil {
		return fmt.Errorf("inspect %s: %w", trainShards[0], err)
	}
	shape := first.EEG.Shape
	log.WithField("sample_shape", shape).Info("sizing networks from the first training sample")

	train, err := newLoader(cfg, trainRoots, shape)
	if err != nil {
		return err
	}
	var val, test dataset.Loader
	if len(cfg.ValRoots) > 0 {
		if val, err = openSplit(cfg, cfg.ValRoots, shape, log); err != nil {
			return err
		}
	}
	if len(cfg.TestRoots) > 0 {
		if test, err = openSplit(cfg, cfg.TestRoots, shape, log); err != nil {
			return err
		}
	}

	conditionClasses := 0
	if cfg.Conditional {
		conditionClasses = cfg.NumClasses
	}
	gen, err := model.NewMLPGenerator(model.GeneratorConfig{
		LatentDim:  cfg.LatentDim,
		HiddenDim:  cfg.HiddenDim,
		OutShape:   shape,
		NumClasses: conditionClasses,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return err
	}
	disc, err := model.NewMLPDiscriminator(model.DiscriminatorConfig{
		InShape:    shape,
		HiddenDim:  cfg.HiddenDim,
		NumClasses: conditionClasses,
		Seed:       cfg.Seed + 1,
	})
	if err != nil {
		return err
	}

	sinks := metrics.MultiSink{metrics.LogSink{Logger: log}}
	if cfg.MetricsDB != "" {
		runID := time.Now().UTC().Format("20060102T150405Z")
		db, err := metrics.OpenSQLiteSink(cfg.MetricsDB, runID)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, db)
		log.WithFields(logrus.Fields{"path": cfg.MetricsDB, "run": runID}).Info("recording metrics")
	}

	opts := trainer.DefaultOptions()
	opts.GeneratorLR = cfg.GeneratorLR
	opts.DiscriminatorLR = cfg.DiscriminatorLR
	opts.WeightDecay = cfg.WeightDecay
	opts.GradientPenaltyWeight = cfg.PenaltyWeight()
	opts.LatentDim = cfg.LatentDim
	opts.Optimizer = cfg.Optimizer
	opts.Accelerator = cfg.Accelerator
	opts.Devices = cfg.Devices
	opts.Metrics = cfg.Metrics
	opts.Conditional = cfg.Conditional
	opts.Seed = cfg.Seed
	opts.LogEvery = cfg.LogEvery
	opts.Logger = log
	opts.Sink = sinks

	if len(cfg.Metrics) > 0 {
		clf, err := trainClassifier(ctx, train, cfg, first.EEG.Len(), log)
		if err != nil {
			return err
		}
		opts.MetricExtractor = clf
		opts.MetricClassifier = clf
	}

	tr, err := trainer.New(gen, disc, opts)
	if err != nil {
		return err
	}
	if err := tr.Fit(ctx, train, val, cfg.MaxEpochs); err != nil {
		return err
	}
	if test == nil {
		return nil
	}
	results, err := tr.Evaluate(ctx, test)
	if err != nil {
		return err
	}
	fields := logrus.Fields{}
	for name, v := range results {
		fields[name] = v
	}
	log.WithFields(fields).Info("test evaluation complete")
	return nil
}

func openSplit(cfg *config.Config, roots []string, shape []int, log *logrus.Logger) (dataset.Loader, error) {
	byRoot, _, err := discover(roots, log)
	if err != nil {
		return nil, err
	}
	return newLoader(cfg, byRoot, shape)
}

// discover groups shards by root and also returns them as one sorted list.
func discover(roots []string, log *logrus.Logger) (map[string][]string, []string, error) {
	byRoot, err := dataset.DiscoverByRoot(roots)
	if err != nil {
		return nil, nil, err
	}
	var all []string
	for root, shards := range byRoot {
		log.WithFields(logrus.Fields{"root": root, "shards": len(shards)}).Info("discovered shards")
		all = append(all, shards...)
	}
	sort.Strings(all)
	return byRoot, all, nil
}

func newLoader(cfg *config.Config, byRoot map[string][]string, shape []int) (*dataset.ShardLoader, error) {
	return dataset.NewShardLoader(dataset.ShardOptions{
		Roots:      byRoot,
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		Seed:       cfg.Seed,
		Shape:      shape,
	})
}

// trainClassifier fits the softmax classifier behind the fid and is metrics
// with one pass over the training split.
func trainClassifier(ctx context.Context, train dataset.Loader, cfg *config.Config, inputSize int, log *logrus.Logger) (*model.SoftmaxClassifier, error) {
	clf := model.NewSoftmaxClassifier(cfg.NumClasses, inputSize, 0.01, cfg.Seed)
	var total float64
	var batches int
	err := train.Iterate(ctx, func(batch model.Batch) error {
		total += clf.TrainStep(batch)
		batches++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("train metric classifier: %w", err)
	}
	if batches > 0 {
		log.WithFields(logrus.Fields{"batches": batches, "loss": total / float64(batches)}).Info("metric classifier trained")
	}
	return clf, nil
}
