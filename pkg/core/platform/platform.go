// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package platform describes the properties of the vector hardware that the layout passes
// depend on: alignment widths, transfer capabilities and the size thresholds used by heuristics.
//
// A Config is normally created with Default, Host or Parse. The option string accepted by Parse
// is a comma-separated list, in the same spirit as backend configurations:
//
//	"align=64,compat,large_tail=4096,small_tail=32,pad=f32;f16;bf16"
//
// The environment variable VECALIGN_PLATFORM, if set, is parsed by FromEnv on top of the defaults.
package platform

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"
)

// EnvVar is the environment variable read by FromEnv.
const EnvVar = "VECALIGN_PLATFORM"

const (
	// AlignWidth32 is the default byte-alignment width of the vector engine.
	AlignWidth32 = 32

	// AlignWidth64 is the wider alignment used for float32 transposes, when supported.
	AlignWidth64 = 64

	// DefaultLargeTailBytes is the width above which a broadcast tail is considered large.
	DefaultLargeTailBytes = 4096
)

// Config holds the platform properties consulted by the layout passes.
type Config struct {
	// Name is used in logs only.
	Name string

	// MaxAlignWidth is the largest byte-alignment width the vector engine accepts: 32 or 64.
	MaxAlignWidth int

	// CompatibilityMode is true if the memory engine supports compatibility-mode transfers, which
	// can service a discontinuous tail directly and make padding loads unnecessary.
	CompatibilityMode bool

	// LargeTailBytes is the broadcast tail width (in bytes) above which NDDMA merges score low.
	LargeTailBytes int

	// SmallTailBytes is the largest concat tail (in bytes) handled by the small-tail rule.
	// If 0, the alignment width is used.
	SmallTailBytes int

	// PadDTypes lists the element types supported by the padding operation.
	PadDTypes []dtypes.DType
}

// Default returns the configuration of a generic vector engine accepting 32 and 64-byte alignments.
func Default() *Config {
	return &Config{
		Name:           "default",
		MaxAlignWidth:  AlignWidth64,
		LargeTailBytes: DefaultLargeTailBytes,
		PadDTypes: []dtypes.DType{
			dtypes.Float32, dtypes.Float16, dtypes.BFloat16,
			dtypes.Int32, dtypes.Int16, dtypes.Int8,
			dtypes.Uint32, dtypes.Uint16, dtypes.Uint8,
		},
	}
}

// Host returns the default configuration adjusted to the CPU running the compiler: 64-byte
// alignment is only allowed if the host has 512-bit vectors.
//
// It is used for local debugging, where the generated kernels run on the host.
func Host() *Config {
	c := Default()
	c.Name = "host"
	if !cpu.X86.HasAVX512F {
		c.MaxAlignWidth = AlignWidth32
	}
	return c
}

// FromEnv returns Default() modified by the options in $VECALIGN_PLATFORM, if set.
func FromEnv() (*Config, error) {
	config, found := os.LookupEnv(EnvVar)
	if !found {
		return Default(), nil
	}
	c, err := Parse(config)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing $%s", EnvVar)
	}
	return c, nil
}

// Parse returns Default() modified by the given comma-separated options.
//
// Options:
//
//   - "host": start from Host() instead of Default().
//   - "name=<name>": name used in logs.
//   - "align=32" or "align=64": maximum alignment width.
//   - "compat" / "nocompat": whether compatibility-mode transfers are supported.
//   - "large_tail=<bytes>": large-tail threshold for NDDMA scoring.
//   - "small_tail=<bytes>": small-tail threshold for concat.
//   - "pad=<dtype>;<dtype>...": dtypes supported by the padding operation (e.g. "pad=f32;f16").
func Parse(config string) (*Config, error) {
	c := Default()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "host":
			*c = *Host()
		case "name":
			c.Name = value
		case "compat":
			c.CompatibilityMode = true
		case "nocompat":
			c.CompatibilityMode = false
		case "align":
			width, err := strconv.Atoi(value)
			if err != nil || (width != AlignWidth32 && width != AlignWidth64) {
				return nil, errors.Errorf("invalid platform option %q: align must be 32 or 64", part)
			}
			c.MaxAlignWidth = width
		case "large_tail", "small_tail":
			bytes, err := strconv.Atoi(value)
			if err != nil || bytes < 0 {
				return nil, errors.Errorf("invalid platform option %q: expected a non-negative number of bytes", part)
			}
			if key == "large_tail" {
				c.LargeTailBytes = bytes
			} else {
				c.SmallTailBytes = bytes
			}
		case "pad":
			if !hasValue {
				return nil, errors.Errorf("invalid platform option %q: expected pad=<dtype>;...", part)
			}
			c.PadDTypes = nil
			for _, name := range strings.Split(value, ";") {
				dtype, err := ParseDType(name)
				if err != nil {
					return nil, errors.WithMessagef(err, "invalid platform option %q", part)
				}
				c.PadDTypes = append(c.PadDTypes, dtype)
			}
		default:
			return nil, errors.Errorf("unknown platform option %q", part)
		}
	}
	klog.V(2).Infof("platform %q: max_align=%d compat=%v large_tail=%d small_tail=%d pad=%v",
		c.Name, c.MaxAlignWidth, c.CompatibilityMode, c.LargeTailBytes, c.SmallTailBytes, c.PadDTypes)
	return c, nil
}

// ParseDType accepts the dtype names as well as their short aliases ("f32", "bf16", ...).
func ParseDType(name string) (dtypes.DType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if dtype, found := dtypeAliases[name]; found {
		return dtype, nil
	}
	for dtype, dtypeName := range dtypeNames() {
		if strings.ToLower(dtypeName) == name {
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
}

var dtypeAliases = map[string]dtypes.DType{
	"f16": dtypes.Float16, "bf16": dtypes.BFloat16, "f32": dtypes.Float32, "f64": dtypes.Float64,
	"i8": dtypes.Int8, "i16": dtypes.Int16, "i32": dtypes.Int32, "i64": dtypes.Int64,
	"u8": dtypes.Uint8, "u16": dtypes.Uint16, "u32": dtypes.Uint32, "u64": dtypes.Uint64,
	"bool": dtypes.Bool,
}

func dtypeNames() map[dtypes.DType]string {
	names := make(map[dtypes.DType]string, len(dtypeAliases))
	for _, dtype := range dtypeAliases {
		names[dtype] = dtype.String()
	}
	return names
}

// SupportsPad returns whether the padding operation supports the dtype.
func (c *Config) SupportsPad(dtype dtypes.DType) bool {
	return slices.Contains(c.PadDTypes, dtype)
}

// SmallTailLimit returns the small-tail threshold in bytes for the given alignment width.
func (c *Config) SmallTailLimit(alignWidth int) int {
	if c.SmallTailBytes > 0 {
		return c.SmallTailBytes
	}
	return alignWidth
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.MaxAlignWidth != AlignWidth32 && c.MaxAlignWidth != AlignWidth64 {
		return errors.Errorf("platform %q: MaxAlignWidth must be 32 or 64, got %d", c.Name, c.MaxAlignWidth)
	}
	if c.LargeTailBytes <= 0 {
		return errors.Errorf("platform %q: LargeTailBytes must be positive, got %d", c.Name, c.LargeTailBytes)
	}
	return nil
}
