// Package estimate predicts job durations. Three tiers, best first: the
// worker's own delivered history, a ridge regression fit on the shop's
// tracked time, and a priority-based fallback adjusted by description
// heuristics. All outputs are clamped to a sane range.
package estimate

import (
	"math"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/heuristics"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// FeatureNames is the fixed column order of the design matrix. The trained
// payload stores its own copy so old models keep decoding after schema
// changes; a mismatch forces a fallback until the next training run.
func FeatureNames() []string {
	names := []string{
		"bias",
		"prio_ALTA",
		"prio_MEDIA",
		"precio",
		"precio2",
	}
	for _, m := range textfeat.MaterialTokens() {
		names = append(names, "mat_"+m)
	}
	for _, p := range textfeat.ProcessTokens() {
		names = append(names, "proc_"+p)
	}
	for _, d := range textfeat.DomainTokens() {
		names = append(names, "tag_"+d)
	}
	names = append(names, "rosca", "tolerancia", "multi")
	for i := 0; i <= len(textfeat.DiameterCuts); i++ {
		names = append(names, "diam_b"+itoa(i))
	}
	for i := 0; i <= len(textfeat.TextLengthCuts); i++ {
		names = append(names, "texto_b"+itoa(i))
	}
	names = append(names,
		"afinidad",
		"carga",
		"antiguedad",
		"rosca_x_tolerancia",
		"precio_x_inox",
	)
	return names
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [4]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// SampleInput is everything the feature vector depends on.
type SampleInput struct {
	Description string
	Priority    models.Priority
	Price       float64

	WorkerSkills []string
	WorkerWIP    int
	WorkerHired  *time.Time
}

// Vector builds the feature row for one sample, in FeatureNames order.
// now anchors the tenure feature and scale standardizes the price columns,
// so training and prediction agree on both.
func Vector(in SampleInput, now time.Time, scale Scale) []float64 {
	f := textfeat.Extract(in.Description)

	priceK := scale.apply(in.Price / 1000.0)
	row := []float64{
		1,
		b2f(in.Priority == models.PriorityHigh),
		b2f(in.Priority == models.PriorityMedium),
		priceK,
		priceK * priceK,
	}
	for _, m := range textfeat.MaterialTokens() {
		row = append(row, b2f(f.Materials[m]))
	}
	for _, p := range textfeat.ProcessTokens() {
		row = append(row, b2f(f.Processes[p]))
	}
	for _, d := range textfeat.DomainTokens() {
		row = append(row, b2f(f.Domain[d]))
	}
	row = append(row, b2f(f.HasThread), b2f(f.HasTolerance), b2f(f.MultiPart))
	for _, v := range f.DiameterBucket {
		row = append(row, float64(v))
	}
	for _, v := range f.TextBucket {
		row = append(row, float64(v))
	}

	skills := heuristics.NormalizeSkills(in.WorkerSkills)
	_, affinity := heuristics.SkillOverlap(skills, f.Tags())

	load := float64(in.WorkerWIP) / float64(models.DefaultWIPMax)
	if load > 1 {
		load = 1
	}

	tenure := 0.0
	if in.WorkerHired != nil {
		years := now.Sub(*in.WorkerHired).Hours() / (24 * 365)
		tenure = math.Min(math.Max(years, 0), 20) / 20
	}

	row = append(row,
		affinity,
		load,
		tenure,
		b2f(f.HasThread && f.HasTolerance),
		priceK*b2f(f.Materials[textfeat.MatStainless]),
	)
	return row
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
