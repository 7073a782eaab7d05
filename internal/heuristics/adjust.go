// Package heuristics applies rule-based corrections to base duration
// estimates and derives the hard skill requirements a job imposes on
// candidates. Every applied rule leaves a human-readable reason string so
// operators can see why an estimate moved.
package heuristics

import (
	"fmt"
	"math"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
)

const (
	multiplierFloor = 0.85
	multiplierCeil  = 2.2
	maxBufferPct    = 0.4
)

// Adjustment is the result of applying the heuristic table to a base
// estimate.
type Adjustment struct {
	Multiplier      float64
	AddSec          int64
	Reasons         []string
	ComplexityScore float64
	GeneralTasks    []string
}

// AdjustedSec applies the multiplier and additive seconds to baseSec.
func (a Adjustment) AdjustedSec(baseSec int64) int64 {
	return int64(math.Round(float64(baseSec)*a.Multiplier)) + a.AddSec
}

// Interval is the confidence band around an adjusted estimate.
type Interval struct {
	MinSec    int64
	MaxSec    int64
	BufferPct float64
}

type multRule struct {
	pct    float64
	reason string
	when   func(textfeat.Features) bool
}

type addRule struct {
	minutes int64
	reason  string
	when    func(textfeat.Features) bool
}

var multRules = []multRule{
	{0.20, "Material 1045 maquinable", func(f textfeat.Features) bool { return f.Materials[textfeat.MatSteel1045] }},
	{0.15, "Fierro fundido", func(f textfeat.Features) bool { return f.Materials[textfeat.MatCastIron] }},
	{0.12, "Bronce fosforado", func(f textfeat.Features) bool { return f.Materials[textfeat.MatBronzePhos] }},
	{0.10, "Bronce fundido", func(f textfeat.Features) bool { return f.Materials[textfeat.MatBronzeCast] }},
	{0.08, "Bronce laminado", func(f textfeat.Features) bool { return f.Materials[textfeat.MatBronzeRolled] }},
	{0.06, "Bronce", func(f textfeat.Features) bool {
		return f.Materials[textfeat.MatBronze] && !f.Materials[textfeat.MatBronzePhos] &&
			!f.Materials[textfeat.MatBronzeCast] && !f.Materials[textfeat.MatBronzeRolled]
	}},
	{0.10, "Acero inoxidable", func(f textfeat.Features) bool { return f.Materials[textfeat.MatStainless] }},
	{0.05, "PTFE/Teflón", func(f textfeat.Features) bool { return f.Materials[textfeat.MatPTFE] }},
	{0.05, "Nylon", func(f textfeat.Features) bool { return f.Materials[textfeat.MatNylon] }},
	{0.02, "Aluminio", func(f textfeat.Features) bool { return f.Materials[textfeat.MatAluminum] }},

	{0.12, "Roscado", func(f textfeat.Features) bool { return f.Processes[textfeat.ProcThreading] || f.HasThread }},
	{0.15, "Tolerancias", func(f textfeat.Features) bool { return f.HasTolerance }},
	{0.20, "Recargue/Rellenado", func(f textfeat.Features) bool { return f.Domain[textfeat.TagHardfacing] || f.Domain[textfeat.TagBuildUp] }},
	{0.10, "Soldadura", func(f textfeat.Features) bool { return f.Processes[textfeat.ProcWelding] }},
	{0.08, "Fresado", func(f textfeat.Features) bool { return f.Processes[textfeat.ProcMilling] }},
	{0.06, "Torneado", func(f textfeat.Features) bool { return f.Processes[textfeat.ProcTurning] }},

	{0.15, "Múltiples piezas", func(f textfeat.Features) bool { return f.MultiPart }},
	{0.06, "Diámetro mediano", func(f textfeat.Features) bool { return f.DiameterBucket[2] == 1 }},
	{0.10, "Diámetro grande", func(f textfeat.Features) bool { return f.DiameterBucket[3] == 1 }},
}

var addRules = []addRule{
	{15, "Pulido", func(f textfeat.Features) bool { return f.Processes[textfeat.ProcPolishing] }},
	{10, "Prensa", func(f textfeat.Features) bool { return f.Domain[textfeat.TagPress] }},
	{10, "Alineado", func(f textfeat.Features) bool { return f.Domain[textfeat.TagAlignment] }},
}

// generalTaskTags are simple bench tasks an assistant can carry alone.
var generalTaskTags = []struct {
	token string
	when  func(textfeat.Features) bool
}{
	{textfeat.ProcPolishing, func(f textfeat.Features) bool { return f.Processes[textfeat.ProcPolishing] }},
	{textfeat.TagPress, func(f textfeat.Features) bool { return f.Domain[textfeat.TagPress] }},
	{textfeat.TagAlignment, func(f textfeat.Features) bool { return f.Domain[textfeat.TagAlignment] }},
}

// Apply runs the adjustment table over extracted features. The combined
// multiplier is clamped to [0.85, 2.2].
func Apply(f textfeat.Features) Adjustment {
	adj := Adjustment{Multiplier: 1}

	for _, r := range multRules {
		if !r.when(f) {
			continue
		}
		adj.Multiplier *= 1 + r.pct
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("%s (+%d%%)", r.reason, int(math.Round(r.pct*100))))
	}
	for _, r := range addRules {
		if !r.when(f) {
			continue
		}
		adj.AddSec += r.minutes * 60
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("%s (+%dm)", r.reason, r.minutes))
	}
	for _, g := range generalTaskTags {
		if g.when(f) {
			adj.GeneralTasks = append(adj.GeneralTasks, g.token)
		}
	}

	adj.Multiplier = math.Max(multiplierFloor, math.Min(multiplierCeil, adj.Multiplier))
	adj.ComplexityScore = f.ComplexityScore()
	return adj
}

// EstimateInterval derives the confidence band around adjustedSec:
// bufferPct = min(0.4, 0.15 + complexity*0.15 + 0.1 if multi-part).
func EstimateInterval(adjustedSec int64, f textfeat.Features) Interval {
	buffer := 0.15 + f.ComplexityScore()*0.15
	if f.MultiPart {
		buffer += 0.1
	}
	if buffer > maxBufferPct {
		buffer = maxBufferPct
	}
	minSec := int64(math.Round(float64(adjustedSec) * (1 - buffer)))
	if minSec < 60 {
		minSec = 60
	}
	maxSec := int64(math.Round(float64(adjustedSec) * (1 + buffer)))
	if maxSec < minSec {
		maxSec = minSec
	}
	return Interval{MinSec: minSec, MaxSec: maxSec, BufferPct: buffer}
}
