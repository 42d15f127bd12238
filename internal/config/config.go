// Package config holds the allocator's tunable constants: the mmap
// threshold and the alignment grain, plus the reserved address-space span
// internal/sysmem commits against. It mirrors a knob-struct shape; the
// allocator itself reads MmapThreshold and ReserveSpan.
package config

// Config holds the constants that parameterize heap-vs-mapping policy.
type Config struct {
	// MmapThreshold is the aligned total (payload + header stride) at or
	// above which a request is served by an independent mapping instead
	// of the heap. Default 131072 (128 KiB).
	MmapThreshold int

	// AlignGrain is the alignment grain Config.Align8 rounds up to, 8 bytes
	// by default. The allocator does not read it: block sizes are always
	// rounded with the fixed 8-byte block.Align8.
	AlignGrain int

	// ReserveSpan is the size of the address-space reservation
	// internal/sysmem commits heap_extend requests against. It bounds how
	// much contiguous heap the process can ever grow to.
	ReserveSpan int
}

const (
	defaultMmapThreshold = 131072
	defaultAlignGrain    = 8
	defaultReserveSpan   = 1 << 30 // 1 GiB
)

// Option configures a Config. The functional-options shape keeps Config
// construction open to future knobs without breaking callers, and avoids
// threading an unused runtime dependency through a struct literal.
type Option func(*Config)

// WithMmapThreshold overrides the heap/mapping threshold. Tests use this to
// exercise the mapped path without needing 128 KiB requests.
func WithMmapThreshold(n int) Option {
	return func(c *Config) { c.MmapThreshold = n }
}

// WithAlignGrain overrides the alignment grain. 8 is the fixed default;
// tests may still probe other grains to verify align8 generalizes.
func WithAlignGrain(n int) Option {
	return func(c *Config) { c.AlignGrain = n }
}

// WithReserveSpan overrides the reserved heap-emulation span.
func WithReserveSpan(n int) Option {
	return func(c *Config) { c.ReserveSpan = n }
}

// DefaultConfig returns the default constants, optionally overridden.
func DefaultConfig(opts ...Option) *Config {
	c := &Config{
		MmapThreshold: defaultMmapThreshold,
		AlignGrain:    defaultAlignGrain,
		ReserveSpan:   defaultReserveSpan,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Align8 rounds n up to the nearest multiple of the alignment grain.
func (c *Config) Align8(n int) int {
	grain := c.AlignGrain
	if grain <= 0 {
		grain = defaultAlignGrain
	}
	if n <= 0 {
		return 0
	}
	return (n + grain - 1) / grain * grain
}
