package index

import "github.com/shirou/gopsutil/v3/mem"

// MemoryGovernor samples used/total memory fraction. Grounded on
// original_source's systemstat-based process sampling, translated here to
// gopsutil/v3 (pulled in from the wider example pack, per DESIGN.md).
type MemoryGovernor interface {
	// UsedFraction returns used/total in [0,1] and true, or false if the
	// host doesn't expose the stat (Build then skips that sample; it does
	// not fall back to EstimateFraction).
	UsedFraction() (float64, bool)
}

type gopsutilGovernor struct{}

// NewMemoryGovernor returns the default governor, backed by gopsutil where
// the host supports it.
func NewMemoryGovernor() MemoryGovernor { return gopsutilGovernor{} }

func (gopsutilGovernor) UsedFraction() (float64, bool) {
	v, err := mem.VirtualMemory()
	if err != nil || v == nil || v.Total == 0 {
		return 0, false
	}
	return float64(v.Used) / float64(v.Total), true
}

// EstimateFraction is the portable fallback spec.md §9 allows when the host
// memory stat is unavailable (e.g. a sandboxed container): a conservative
// estimate based on entry count times a fixed per-entry byte cost, divided
// against an assumed ceiling.
func EstimateFraction(entryCount int, fixedBytesPerEntry, assumedCeilingBytes uint64) float64 {
	if assumedCeilingBytes == 0 {
		return 0
	}
	used := uint64(entryCount) * fixedBytesPerEntry
	return float64(used) / float64(assumedCeilingBytes)
}
