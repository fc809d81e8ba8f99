// Package terrain synthesises chunk voxels from a density field.
package terrain

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Density is a scalar field over world voxel coordinates. Positive values
// are solid. Implementations must be pure and safe for concurrent use.
type Density interface {
	Density(x, y, z float64) float64
}

// DensityFunc adapts a function to Density.
type DensityFunc func(x, y, z float64) float64

// Density calls f.
func (f DensityFunc) Density(x, y, z float64) float64 { return f(x, y, z) }

// NoiseConfig parameterises NoiseDensity.
type NoiseConfig struct {
	Seed       int64
	Frequency  float64 // per voxel
	Octaves    int
	Lacunarity float64
	Gain       float64
	SeaLevel   float64
}

// DefaultNoiseConfig returns the stock world settings.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		Seed:       1773,
		Frequency:  0.004,
		Octaves:    4,
		Lacunarity: 2,
		Gain:       0.5,
		SeaLevel:   16,
	}
}

// gradientScale is the height over which the vertical bias moves by 1.
const gradientScale = 64

// NoiseDensity is fractal OpenSimplex noise biased toward solid below sea level.
type NoiseDensity struct {
	noise opensimplex.Noise
	cfg   NoiseConfig
	norm  float64
}

// NewNoiseDensity builds the density field.
func NewNoiseDensity(cfg NoiseConfig) *NoiseDensity {
	if cfg.Octaves < 1 {
		cfg.Octaves = 1
	}
	var total, amp float64 = 0, 1
	for range cfg.Octaves {
		total += amp
		amp *= cfg.Gain
	}
	return &NoiseDensity{
		noise: opensimplex.New(cfg.Seed),
		cfg:   cfg,
		norm:  1 / total,
	}
}

// Density returns normalised fBm plus (seaLevel - y) / 64.
func (d *NoiseDensity) Density(x, y, z float64) float64 {
	freq, amp, sum := d.cfg.Frequency, 1.0, 0.0
	for range d.cfg.Octaves {
		sum += amp * d.noise.Eval3(x*freq, y*freq, z*freq)
		freq *= d.cfg.Lacunarity
		amp *= d.cfg.Gain
	}
	return sum*d.norm + (d.cfg.SeaLevel-y)/gradientScale
}
