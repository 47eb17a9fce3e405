package metrics

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"eeg-forge/internal/autograd"
)

type identity struct{ width int }

func (f identity) Features(x *autograd.Tensor) (*autograd.Tensor, error) {
	return autograd.Reshape(x.Detach(), x.Rows(), f.width), nil
}

func (f identity) Logits(x *autograd.Tensor) (*autograd.Tensor, error) {
	return f.Features(x)
}

// flat returns features as one (B*width) vector.
type flat struct{}

func (flat) Features(x *autograd.Tensor) (*autograd.Tensor, error) {
	return autograd.Reshape(x.Detach(), x.Len()), nil
}

type inChannels struct {
	identity
}

func (inChannels) InChannels() int { return 2 }

func rows(t *testing.T, data [][]float64) *autograd.Tensor {
	t.Helper()
	x, err := autograd.FromRows(data)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return x
}

func TestMeanLifecycle(t *testing.T) {
	var m Mean
	if _, err := m.Compute(); !errors.Is(err, ErrEmptyAccumulator) {
		t.Fatalf("expected ErrEmptyAccumulator, got %v", err)
	}
	m.Update(1)
	m.Update(2)
	m.Update(6)
	v, err := m.Compute()
	if err != nil || v != 3 {
		t.Fatalf("expected mean 3, got %v (err %v)", v, err)
	}
	m.Reset()
	if m.Count() != 0 {
		t.Fatalf("expected empty accumulator after reset")
	}
	if _, err := m.Compute(); !errors.Is(err, ErrEmptyAccumulator) {
		t.Fatalf("expected ErrEmptyAccumulator after reset, got %v", err)
	}
}

func TestFIDShiftedPopulation(t *testing.T) {
	fid, err := NewFID(identity{2}, 2)
	if err != nil {
		t.Fatalf("fid: %v", err)
	}
	real := [][]float64{{0, 0}, {1, 0}, {0, 2}, {1, 1}, {2, 3}}
	fake := make([][]float64, len(real))
	for i, r := range real {
		fake[i] = []float64{r[0] + 3, r[1] + 4}
	}
	if err := fid.Update(rows(t, real), true); err != nil {
		t.Fatalf("update real: %v", err)
	}
	if err := fid.Update(rows(t, fake), false); err != nil {
		t.Fatalf("update fake: %v", err)
	}
	got, err := fid.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(got-25) > 1e-6 {
		t.Fatalf("expected fid 25, got %f", got)
	}
	fid.Reset()
	if _, err := fid.Compute(); !errors.Is(err, ErrEmptyAccumulator) {
		t.Fatalf("expected ErrEmptyAccumulator after reset, got %v", err)
	}
}

func TestFIDRejectsUnbatchedFeatures(t *testing.T) {
	fid, err := NewFID(flat{}, 2)
	if err != nil {
		t.Fatalf("fid: %v", err)
	}
	if err := fid.Update(rows(t, [][]float64{{1, 2}, {3, 4}}), true); !errors.Is(err, autograd.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch for rank-1 features, got %v", err)
	}
}

func TestFIDNeedsTwoSamples(t *testing.T) {
	fid, _ := NewFID(identity{2}, 2)
	_ = fid.Update(rows(t, [][]float64{{1, 2}}), true)
	_ = fid.Update(rows(t, [][]float64{{1, 2}, {2, 2}}), false)
	if _, err := fid.Compute(); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
}

func TestInceptionScore(t *testing.T) {
	is, err := NewInceptionScore(identity{2}, 1)
	if err != nil {
		t.Fatalf("is: %v", err)
	}
	if err := is.Update(rows(t, [][]float64{{100, 0}}), true); err != nil {
		t.Fatalf("update real: %v", err)
	}
	if _, err := is.Compute(); !errors.Is(err, ErrEmptyAccumulator) {
		t.Fatalf("expected real samples to be ignored, got %v", err)
	}
	if err := is.Update(rows(t, [][]float64{{50, 0}, {0, 50}, {50, 0}, {0, 50}}), false); err != nil {
		t.Fatalf("update fake: %v", err)
	}
	got, err := is.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(got-2) > 1e-6 {
		t.Fatalf("expected confident balanced predictions to score 2, got %f", got)
	}

	is.Reset()
	_ = is.Update(rows(t, [][]float64{{1, 1}, {3, 3}}), false)
	got, _ = is.Compute()
	if math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected uniform predictions to score 1, got %f", got)
	}
}

func TestInceptionScoreSplits(t *testing.T) {
	is, _ := NewInceptionScore(identity{2}, 2)
	_ = is.Update(rows(t, [][]float64{{50, 0}, {0, 50}, {1, 1}, {1, 1}}), false)
	mean, std, err := is.ComputeWithStd()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if math.Abs(mean-1.5) > 1e-6 {
		t.Fatalf("expected mean of split scores 1.5, got %f", mean)
	}
	if math.Abs(std-math.Sqrt(0.5)) > 1e-6 {
		t.Fatalf("expected std %f, got %f", math.Sqrt(0.5), std)
	}
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Build([]string{"bogus"}, Deps{}); !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("expected ErrUnknownMetric, got %v", err)
	}
	if _, err := reg.Build([]string{"fid"}, Deps{}); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for fid, got %v", err)
	}
	if _, err := reg.Build([]string{"is"}, Deps{}); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for is, got %v", err)
	}
	if _, err := reg.Build([]string{"fid"}, Deps{Extractor: identity{2}}); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected unresolved feature width to fail, got %v", err)
	}

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	built, err := reg.Build([]string{"fid", "is"}, Deps{Extractor: inChannels{identity{2}}, Classifier: identity{2}, Logger: logger})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(built) != 2 || built[0].Name != "fid" || built[1].Name != "is" {
		t.Fatalf("expected [fid is], got %+v", built)
	}
	if !strings.Contains(buf.String(), "level=warning") {
		t.Fatalf("expected a warning when inferring feature width, got %q", buf.String())
	}
}

func TestPhaseSetComputeBeforeReset(t *testing.T) {
	set := NewPhaseSet(Val, nil)
	set.UpdateLosses(1, 4)
	set.UpdateLosses(3, 2)
	results, err := set.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := []Result{{"val_g_loss", 2}, {"val_d_loss", 3}}
	for i, r := range results {
		if r != want[i] {
			t.Fatalf("expected %+v, got %+v", want, results)
		}
	}
	set.Reset()
	if _, err := set.Compute(); !errors.Is(err, ErrEmptyAccumulator) {
		t.Fatalf("expected ErrEmptyAccumulator after reset, got %v", err)
	}
	if got := strings.Join(set.Names(), ","); got != "val_g_loss,val_d_loss" {
		t.Fatalf("unexpected names %s", got)
	}
	if Val.Tag() != "Val" || Train.Tag() != "Train" || Test.Tag() != "Test" {
		t.Fatalf("expected title-case tags, got %s %s %s", Train.Tag(), Val.Tag(), Test.Tag())
	}
}

func TestSinks(t *testing.T) {
	var rec Recorder
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	sink := MultiSink{&rec, LogSink{Logger: logger}}
	if err := sink.Emit(Observation{Phase: Train, Epoch: 2, Name: "train_g_loss", Value: 0.5}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if obs := rec.Observations(); len(obs) != 1 || obs[0].Epoch != 2 {
		t.Fatalf("unexpected recorded observations %+v", obs)
	}
	if !strings.Contains(buf.String(), "metric=train_g_loss") {
		t.Fatalf("expected structured log entry, got %q", buf.String())
	}
}

func TestSQLiteSink(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "metrics.db"), "run-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()
	for epoch, v := range []float64{0.9, 0.4} {
		if err := sink.Emit(Observation{Phase: Val, Epoch: epoch, Name: "val_d_loss", Value: v}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	obs, err := sink.Query("val_d_loss")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(obs) != 2 || obs[1].Value != 0.4 || obs[1].Phase != Val {
		t.Fatalf("unexpected rows %+v", obs)
	}
}

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond, 10*time.Millisecond, 1.2, -0.3)
	w.Record(64, 10*time.Millisecond, 20*time.Millisecond, 0.8, -0.1)
	if w.Steps() != 2 {
		t.Fatalf("expected 2 steps, got %d", w.Steps())
	}
	snap := w.Snapshot()
	if math.Abs(snap.SamplesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.SamplesPerSec)
	}
	if snap.Steps != 2 || snap.AvgDataMS != 15 || snap.AvgComputeMS != 15 {
		t.Fatalf("unexpected step timings %+v", snap)
	}
	if math.Abs(snap.GLoss-1.0) > 1e-12 || math.Abs(snap.DLoss+0.2) > 1e-12 {
		t.Fatalf("expected window mean losses 1.0/-0.2, got %.3f/%.3f", snap.GLoss, snap.DLoss)
	}
	if w.Steps() != 0 || w.gLoss.Count() != 0 {
		t.Fatalf("window was not reset")
	}
	if empty := w.Snapshot(); empty.SamplesPerSec != 0 || empty.GLoss != 0 {
		t.Fatalf("expected zero snapshot from an empty window, got %+v", empty)
	}
}
