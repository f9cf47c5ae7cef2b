package environment

import (
	"math/rand"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// ResourceUsage is one point-in-time usage snapshot for an environment.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	DiskIOMB   float64 `json:"disk_io_mb"`
	NetworkMB  float64 `json:"network_mb"`
}

// Sampler produces usage snapshots for the sampling loop. Limit enforcement
// is independent of how snapshots are measured, so deterministic doubles and
// real host measurement are interchangeable.
type Sampler interface {
	Sample() ResourceUsage
}

// SimulatedSampler generates random usage values bounded by Max. It is the
// default sampler; soft-limit plumbing works without any OS access.
type SimulatedSampler struct {
	Max ResourceUsage
}

// NewSimulatedSampler returns a sampler with typical workstation bounds.
func NewSimulatedSampler() *SimulatedSampler {
	return &SimulatedSampler{Max: ResourceUsage{CPUPercent: 100, MemoryMB: 1024, DiskIOMB: 64, NetworkMB: 32}}
}

// Sample returns a fresh random snapshot.
func (s *SimulatedSampler) Sample() ResourceUsage {
	return ResourceUsage{
		CPUPercent: rand.Float64() * s.Max.CPUPercent,
		MemoryMB:   rand.Float64() * s.Max.MemoryMB,
		DiskIOMB:   rand.Float64() * s.Max.DiskIOMB,
		NetworkMB:  rand.Float64() * s.Max.NetworkMB,
	}
}

// FixedSampler always returns the configured snapshot. Test double for
// deterministic limit-enforcement tests.
type FixedSampler struct {
	Usage ResourceUsage
}

// Sample returns the fixed snapshot.
func (s *FixedSampler) Sample() ResourceUsage { return s.Usage }

// HostSampler measures real host utilization via gopsutil. Disk and network
// figures are deltas against the previous sample, matching the per-interval
// semantics of the simulated values.
type HostSampler struct {
	mu       sync.Mutex
	lastDisk uint64
	lastNet  uint64
}

// NewHostSampler constructs a host-backed sampler.
func NewHostSampler() *HostSampler { return &HostSampler{} }

// Sample measures current host usage. Probe errors leave the affected field
// at zero; sampling must never interrupt an execution.
func (s *HostSampler) Sample() ResourceUsage {
	var usage ResourceUsage

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		usage.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.MemoryMB = float64(vm.Used) / (1 << 20)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if counters, err := disk.IOCounters(); err == nil {
		var total uint64
		for _, c := range counters {
			total += c.ReadBytes + c.WriteBytes
		}
		if s.lastDisk > 0 && total >= s.lastDisk {
			usage.DiskIOMB = float64(total-s.lastDisk) / (1 << 20)
		}
		s.lastDisk = total
	}
	if counters, err := net.IOCounters(false); err == nil && len(counters) > 0 {
		total := counters[0].BytesRecv + counters[0].BytesSent
		if s.lastNet > 0 && total >= s.lastNet {
			usage.NetworkMB = float64(total-s.lastNet) / (1 << 20)
		}
		s.lastNet = total
	}
	return usage
}
