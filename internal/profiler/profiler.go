// Package profiler implements the offline profiler (spec 4.8): per-node tick
// duration statistics collected online, classified into a scheduler tier, and
// persisted for later replay without the non-deterministic cost of a live
// learning phase.
package profiler

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/horus-rt/horus/internal/herr"
)

// Tier mirrors the scheduler's execution tiers (spec 4.4), as recommended by
// classification rather than assigned by the scheduler itself.
type Tier uint8

const (
	TierJIT Tier = iota
	TierFast
	TierNormal
	TierAsyncIO
	TierBackground
	TierIsolated
)

func (t Tier) String() string {
	switch t {
	case TierJIT:
		return "JIT"
	case TierFast:
		return "Fast"
	case TierNormal:
		return "Normal"
	case TierAsyncIO:
		return "AsyncIO"
	case TierBackground:
		return "Background"
	case TierIsolated:
		return "Isolated"
	default:
		return "Unknown"
	}
}

// welford holds running mean/variance state per Welford's online algorithm.
type welford struct {
	count int
	mean  float64
	m2    float64
	min   float64
	max   float64
}

func (w *welford) update(value float64) {
	if w.count == 0 {
		w.min = math.MaxFloat64
	}
	w.count++
	if value < w.min {
		w.min = value
	}
	if value > w.max {
		w.max = value
	}
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	delta2 := value - w.mean
	w.m2 += delta * delta2
}

func (w *welford) stddev() float64 {
	if w.count > 1 {
		return math.Sqrt(w.m2 / float64(w.count-1))
	}
	return 0
}

// NodeProfile is the classified statistics for one node.
type NodeProfile struct {
	Name            string  `json:"name"`
	Tier            Tier    `json:"tier"`
	AvgUs           float64 `json:"avg_us"`
	StddevUs        float64 `json:"stddev_us"`
	MinUs           float64 `json:"min_us"`
	MaxUs           float64 `json:"max_us"`
	SampleCount     int     `json:"sample_count"`
	IsDeterministic bool    `json:"is_deterministic"`
	IsIOHeavy       bool    `json:"is_io_heavy"`
	IsCPUBound      bool    `json:"is_cpu_bound"`
}

// classify applies the tier-classification rule from spec 4.8:
//
//	CV < 0.10                         => deterministic
//	CV > 0.30 && max > 2*mean         => I/O-heavy => AsyncIO
//	else if deterministic && mean<1us => JIT
//	else if mean<10us                 => Fast
//	else if mean<100us                => Normal
//	else                               => Background
func (p *NodeProfile) classify() {
	cv := 0.0
	if p.AvgUs > 0 {
		cv = p.StddevUs / p.AvgUs
	}
	p.IsDeterministic = cv < 0.10
	p.IsIOHeavy = cv > 0.30 && p.MaxUs > p.AvgUs*2.0
	p.IsCPUBound = p.AvgUs > 100.0 && cv < 0.20

	switch {
	case p.IsIOHeavy:
		p.Tier = TierAsyncIO
	case p.AvgUs < 1.0 && p.IsDeterministic:
		p.Tier = TierJIT
	case p.AvgUs < 10.0:
		p.Tier = TierFast
	case p.AvgUs < 100.0:
		p.Tier = TierNormal
	default:
		p.Tier = TierBackground
	}
}

// HardwareInfo records the host a profile was collected on, so a loader can
// warn when the running host differs materially.
type HardwareInfo struct {
	CPUModel   string `json:"cpu_model"`
	CPUCores   int    `json:"cpu_cores"`
	CPUFreqMHz uint64 `json:"cpu_freq_mhz"`
	OS         string `json:"os"`
}

// CurrentHardwareInfo collects the running host's descriptor.
func CurrentHardwareInfo() HardwareInfo {
	model, freq := readCPUInfo()
	return HardwareInfo{
		CPUModel:   model,
		CPUCores:   runtime.NumCPU(),
		CPUFreqMHz: freq,
		OS:         runtime.GOOS,
	}
}

// IsCompatible reports whether two hardware descriptors are close enough for
// the profile to be trusted as-is (core count match, per spec 4.8).
func (h HardwareInfo) IsCompatible(other HardwareInfo) bool {
	return h.CPUCores == other.CPUCores
}

// Profile is the full persisted artifact: version, metadata, per-node
// profiles, and the hardware descriptor of the machine that collected it.
type Profile struct {
	Version        uint32                 `json:"version"`
	Name           string                 `json:"name"`
	CreatedAtUnix  int64                  `json:"created_at"`
	ProfilingTicks int                    `json:"profiling_ticks"`
	TickRateHz     float64                `json:"tick_rate_hz"`
	Nodes          map[string]*NodeProfile `json:"nodes"`
	Hardware       HardwareInfo           `json:"hardware_info"`
}

const formatVersion uint32 = 1

// NewProfile creates an empty profile, stamping the current host's hardware
// descriptor.
func NewProfile(name string, createdAtUnix int64) *Profile {
	return &Profile{
		Version:       formatVersion,
		Name:          name,
		CreatedAtUnix: createdAtUnix,
		TickRateHz:    60.0,
		Nodes:         make(map[string]*NodeProfile),
		Hardware:      CurrentHardwareInfo(),
	}
}

// Tier returns a node's recommended tier, defaulting to Fast for an
// unprofiled node (matching the scheduler's own default tier).
func (p *Profile) Tier(nodeName string) Tier {
	if n, ok := p.Nodes[nodeName]; ok {
		return n.Tier
	}
	return TierFast
}

// CheckCompatibility reports human-readable warnings if the running host
// differs from the one the profile was collected on.
func (p *Profile) CheckCompatibility() []string {
	current := CurrentHardwareInfo()
	var warnings []string
	if !p.Hardware.IsCompatible(current) {
		warnings = append(warnings, "profile was collected on a different core count than the running host")
	}
	if p.Hardware.OS != current.OS {
		warnings = append(warnings, "profile was collected on a different OS than the running host")
	}
	return warnings
}

// SaveText persists the profile as human-readable JSON.
func (p *Profile) SaveText(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return herr.Wrap(herr.Io, "profiler.SaveText", "marshal failed", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return herr.IoErr("profiler.SaveText", err)
	}
	return nil
}

// binaryMagic tags the compact binary format so LoadAny can tell it apart
// from a JSON file without relying on the file extension.
var binaryMagic = [4]byte{'H', 'P', 'R', 'F'}

// SaveBinary persists the profile in a compact length-prefixed binary
// encoding (JSON payload behind a fixed magic, to keep one decoder for both
// formats while still answering "is this binary or text" cheaply).
func (p *Profile) SaveBinary(path string) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return herr.Wrap(herr.Io, "profiler.SaveBinary", "marshal failed", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return herr.IoErr("profiler.SaveBinary", err)
	}
	defer out.Close()

	if _, err := out.Write(binaryMagic[:]); err != nil {
		return herr.IoErr("profiler.SaveBinary", err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := out.Write(lenBuf[:]); err != nil {
		return herr.IoErr("profiler.SaveBinary", err)
	}
	if _, err := out.Write(payload); err != nil {
		return herr.IoErr("profiler.SaveBinary", err)
	}
	return nil
}

// LoadAny reads a profile saved by either SaveText or SaveBinary.
func LoadAny(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, herr.IoErr("profiler.LoadAny", err)
	}

	var payload []byte
	if len(data) >= 8 && string(data[0:4]) == string(binaryMagic[:]) {
		n := binary.LittleEndian.Uint32(data[4:8])
		if len(data) < int(8+n) {
			return nil, herr.ValidationErr("profiler.LoadAny", "truncated binary profile")
		}
		payload = data[8 : 8+n]
	} else {
		payload = data
	}

	var p Profile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, herr.Wrap(herr.Validation, "profiler.LoadAny", "failed to decode profile", err)
	}
	if p.Version != formatVersion {
		return nil, herr.MismatchErr("profiler.LoadAny", "version", formatVersion, p.Version)
	}
	return &p, nil
}

// Profiler collects per-node tick durations online and classifies tiers on
// Finalize.
type Profiler struct {
	name        string
	createdAt   int64
	targetTicks int
	currentTick int
	tickRateHz  float64
	stats       map[string]*welford
}

// New creates a profiler targeting targetTicks samples before IsComplete
// reports true. createdAtUnix is supplied by the caller since this package
// must not call time.Now() directly to stay deterministic-replay-safe in
// test harnesses that stub it.
func New(name string, targetTicks int, createdAtUnix int64) *Profiler {
	return &Profiler{
		name:        name,
		createdAt:   createdAtUnix,
		targetTicks: targetTicks,
		tickRateHz:  60.0,
		stats:       make(map[string]*welford),
	}
}

// Record adds one duration sample for nodeName.
func (p *Profiler) Record(nodeName string, d time.Duration) {
	us := float64(d.Nanoseconds()) / 1000.0
	w, ok := p.stats[nodeName]
	if !ok {
		w = &welford{}
		p.stats[nodeName] = w
	}
	w.update(us)
}

// Tick advances the profiler's tick counter.
func (p *Profiler) Tick() {
	p.currentTick++
}

// IsComplete reports whether the target tick count has been reached.
func (p *Profiler) IsComplete() bool {
	return p.currentTick >= p.targetTicks
}

// Progress returns a 0..1 fraction of target ticks completed.
func (p *Profiler) Progress() float64 {
	if p.targetTicks == 0 {
		return 1
	}
	frac := float64(p.currentTick) / float64(p.targetTicks)
	if frac > 1 {
		frac = 1
	}
	return frac
}

// SetTickRate records the scheduler tick rate used while profiling, carried
// through to the finalized Profile for informational purposes.
func (p *Profiler) SetTickRate(hz float64) {
	p.tickRateHz = hz
}

// Finalize classifies every recorded node's tier and returns the completed
// Profile.
func (p *Profiler) Finalize() *Profile {
	profile := NewProfile(p.name, p.createdAt)
	profile.ProfilingTicks = p.currentTick
	profile.TickRateHz = p.tickRateHz

	names := make([]string, 0, len(p.stats))
	for name := range p.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := p.stats[name]
		min := w.min
		if min == math.MaxFloat64 {
			min = 0
		}
		np := &NodeProfile{
			Name:        name,
			AvgUs:       w.mean,
			StddevUs:    w.stddev(),
			MinUs:       min,
			MaxUs:       w.max,
			SampleCount: w.count,
		}
		np.classify()
		profile.Nodes[name] = np
	}
	return profile
}
