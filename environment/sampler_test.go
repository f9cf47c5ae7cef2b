package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Interface compliance (compile-time assertions)
var (
	_ Sampler = (*SimulatedSampler)(nil)
	_ Sampler = (*FixedSampler)(nil)
	_ Sampler = (*HostSampler)(nil)
)

func TestSimulatedSamplerBounds(t *testing.T) {
	s := NewSimulatedSampler()

	for i := 0; i < 100; i++ {
		usage := s.Sample()
		assert.GreaterOrEqual(t, usage.CPUPercent, 0.0)
		assert.LessOrEqual(t, usage.CPUPercent, s.Max.CPUPercent)
		assert.GreaterOrEqual(t, usage.MemoryMB, 0.0)
		assert.LessOrEqual(t, usage.MemoryMB, s.Max.MemoryMB)
	}
}

func TestFixedSampler(t *testing.T) {
	usage := ResourceUsage{CPUPercent: 42, MemoryMB: 128}
	s := &FixedSampler{Usage: usage}

	assert.Equal(t, usage, s.Sample())
	assert.Equal(t, usage, s.Sample())
}

func TestHostSamplerNeverPanics(t *testing.T) {
	s := NewHostSampler()

	// Probe errors must degrade to zero values, not failures.
	usage := s.Sample()
	assert.GreaterOrEqual(t, usage.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, usage.MemoryMB, 0.0)
}
