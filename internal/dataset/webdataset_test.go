package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestStreamShardPairsEntries(t *testing.T) {
	shard := writeShard(t, buildShard(t, map[string]filePair{
		"000001": {eeg: Array{Data: []float64{1, 2, 3, 4}, Shape: []int{2, 2}}, label: 3},
		"000002": {eeg: Array{Data: []float64{5, 6, 7, 8}, Shape: []int{2, 2}}, label: 7},
	}))

	samples, err := drainShard(t, shard)
	if err != nil {
		t.Fatalf("StreamShard returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	for _, s := range samples {
		if !sameShape(s.EEG.Shape, []int{2, 2}) {
			t.Fatalf("expected shape [2 2], got %v", s.EEG.Shape)
		}
		if s.Key == "000002" && (s.Label != 7 || s.EEG.Data[3] != 8) {
			t.Fatalf("unexpected sample %+v", s)
		}
	}
}

func TestStreamShardAcceptsLabelBeforeSignal(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(t, tw, "rec.cls", []byte(" 4\n"))
	addTarEntry(t, tw, "rec.json", []byte("{}"))
	addTarEntry(t, tw, "rec.npy", npyBytes(t, Array{Data: []float64{0.5, -0.5}, Shape: []int{2}}))
	tw.Close()

	sample, err := FirstSample(context.Background(), writeShard(t, buf))
	if err != nil {
		t.Fatalf("FirstSample: %v", err)
	}
	if sample.Key != "rec" || sample.Label != 4 || sample.EEG.Data[1] != -0.5 {
		t.Fatalf("unexpected sample %+v", sample)
	}
}

func TestStreamShardRejectsBadPayloads(t *testing.T) {
	for name, entries := range map[string][][2]string{
		"label": {{"a.cls", "four"}},
		"array": {{"a.npy", "not an npy payload"}},
	} {
		buf := &bytes.Buffer{}
		tw := tar.NewWriter(buf)
		for _, e := range entries {
			addTarEntry(t, tw, e[0], []byte(e[1]))
		}
		tw.Close()
		if _, err := drainShard(t, writeShard(t, buf)); err == nil {
			t.Fatalf("%s: expected a decode error", name)
		}
	}
}

func TestStreamShardReportsIncomplete(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(t, tw, "lonely.cls", []byte("1"))
	tw.Close()
	if _, err := FirstSample(context.Background(), writeShard(t, buf)); err == nil {
		t.Fatalf("expected an error for a shard without complete samples")
	}
}

// drainShard reads the whole shard and returns the first error reported.
func drainShard(t *testing.T, path string) ([]Sample, error) {
	t.Helper()
	samplesCh, errCh := StreamShard(context.Background(), path, 4)
	var samples []Sample
	for s := range samplesCh {
		samples = append(samples, s)
	}
	for err := range errCh {
		if err != nil {
			return samples, err
		}
	}
	return samples, nil
}

func writeShard(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	return path
}

func buildShard(t *testing.T, data map[string]filePair) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for key, pair := range data {
		addTarEntry(t, tw, key+".npy", npyBytes(t, pair.eeg))
		addTarEntry(t, tw, key+".cls", []byte(strconv.Itoa(pair.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return buf
}

type filePair struct {
	eeg   Array
	label int
}

func npyBytes(t *testing.T, a Array) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := EncodeNPY(buf, a); err != nil {
		t.Fatalf("encode npy: %v", err)
	}
	return buf.Bytes()
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}
