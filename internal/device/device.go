// Package device resolves the requested accelerator to a compute device.
// Tensors live in host memory, so the CPU is the only device that resolves.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// ErrUnavailable reports an accelerator with no backend.
var ErrUnavailable = errors.New("device: accelerator unavailable")

// Device describes the resolved compute device.
type Device struct {
	Kind         string
	Brand        string
	LogicalCores int
	Features     []string
}

func (d Device) String() string {
	if len(d.Features) == 0 {
		return fmt.Sprintf("%s(%s, %d cores)", d.Kind, d.Brand, d.LogicalCores)
	}
	return fmt.Sprintf("%s(%s, %d cores, %s)", d.Kind, d.Brand, d.LogicalCores, strings.Join(d.Features, "+"))
}

// Resolve maps an accelerator name and device count to a Device. "" and
// "auto" resolve to the CPU.
func Resolve(accelerator string, devices int) (Device, error) {
	if devices != 1 {
		return Device{}, fmt.Errorf("device: exactly one device is supported (got %d)", devices)
	}
	switch strings.ToLower(accelerator) {
	case "", "auto", "cpu":
		return cpu(), nil
	case "gpu", "cuda", "mps", "tpu":
		return Device{}, fmt.Errorf("%w: %s", ErrUnavailable, accelerator)
	}
	return Device{}, fmt.Errorf("device: unknown accelerator %q", accelerator)
}

func cpu() Device {
	d := Device{
		Kind:         "cpu",
		Brand:        cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
	}
	if d.Brand == "" {
		d.Brand = cpuid.CPU.VendorString
	}
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			d.Features = append(d.Features, f.name)
		}
	}
	return d
}
