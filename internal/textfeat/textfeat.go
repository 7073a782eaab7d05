// Package textfeat extracts structured signals from free-text job
// descriptions. Matching is a declarative table of (pattern -> token) pairs
// consumed by one matcher, so new shop vocabulary is configuration, not new
// control flow. Extraction is deterministic and has no side effects.
package textfeat

import (
	"regexp"
	"strings"
)

// Material tokens.
const (
	MatSteel        = "acero"
	MatSteel1045    = "acero_1045"
	MatCastIron     = "fundido"
	MatBronze       = "bronce"
	MatBronzePhos   = "bronce_fosforado"
	MatBronzeCast   = "bronce_fundido"
	MatBronzeRolled = "bronce_laminado"
	MatStainless    = "inox"
	MatPTFE         = "teflon"
	MatNylon        = "nylon"
	MatAluminum     = "aluminio"
)

// Process tokens.
const (
	ProcTurning   = "torneado"
	ProcMilling   = "fresado"
	ProcThreading = "roscado"
	ProcDrilling  = "taladrado"
	ProcWelding   = "soldadura"
	ProcPolishing = "pulido"
)

// Domain tags.
const (
	TagBearing     = "rodamiento"
	TagAxleShaft   = "palier"
	TagBushing     = "buje"
	TagTray        = "bandeja"
	TagFrontEnd    = "tren_delantero"
	TagGear        = "engranaje"
	TagCrownGear   = "corona"
	TagBuildUp     = "rellenado"
	TagHardfacing  = "recargue"
	TagPress       = "prensa"
	TagAlignment   = "alineado"
	TagBaseTurning = "torneado_base"
)

type rule struct {
	token    string
	patterns []string // plain substrings, lower-cased
	re       *regexp.Regexp
}

var materialRules = []rule{
	{token: MatSteel1045, patterns: []string{"1045"}},
	{token: MatSteel, patterns: []string{"acero"}},
	{token: MatCastIron, patterns: []string{"fundido", "fierro fundido"}},
	{token: MatBronzePhos, patterns: []string{"bronce fosforado", "fosforado"}},
	{token: MatBronzeCast, patterns: []string{"bronce fundido"}},
	{token: MatBronzeRolled, patterns: []string{"bronce laminado", "laminado"}},
	{token: MatBronze, patterns: []string{"bronce"}},
	{token: MatStainless, patterns: []string{"inox", "acero inox", "inoxidable"}},
	{token: MatPTFE, patterns: []string{"teflon", "ptfe", "plast"}},
	{token: MatNylon, patterns: []string{"nylon", "nailon"}},
	{token: MatAluminum, patterns: []string{"alumin", "alu "}},
}

var processRules = []rule{
	{token: ProcTurning, patterns: []string{"torne", "torno"}},
	{token: ProcMilling, patterns: []string{"fresa", "fresad"}},
	{token: ProcThreading, patterns: []string{"rosca"}, re: threadRe},
	{token: ProcDrilling, patterns: []string{"taladr", "perfor"}},
	{token: ProcWelding, patterns: []string{"soldad"}},
	{token: ProcPolishing, patterns: []string{"pulid", "lij"}},
}

var domainRules = []rule{
	{token: TagBearing, patterns: []string{"rodamiento"}},
	{token: TagAxleShaft, patterns: []string{"palier"}},
	{token: TagBushing, patterns: []string{"buje"}},
	{token: TagTray, patterns: []string{"bandeja"}},
	{token: TagFrontEnd, patterns: []string{"tren delantero"}},
	{token: TagGear, patterns: []string{"engranaje"}},
	{token: TagCrownGear, patterns: []string{"corona"}},
	{token: TagBuildUp, patterns: []string{"rellenado", "rellenar"}},
	{token: TagHardfacing, patterns: []string{"recargue"}},
	{token: TagPress, patterns: []string{"prensa"}},
	{token: TagAlignment, patterns: []string{"alineado", "alinear"}},
	{token: TagBaseTurning, patterns: []string{"tornear base", "torneado base", "tornear la base"}},
}

func tokens(rules []rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.token
	}
	return out
}

// MaterialTokens returns every material token in table order.
func MaterialTokens() []string { return tokens(materialRules) }

// ProcessTokens returns every process token in table order.
func ProcessTokens() []string { return tokens(processRules) }

// DomainTokens returns every domain tag in table order.
func DomainTokens() []string { return tokens(domainRules) }

var (
	threadRe    = regexp.MustCompile(`\bm\d{1,2}\b`)
	toleranceRe = regexp.MustCompile(`\bh\d\b|\bit\d\b`)
	multiRe     = regexp.MustCompile(`\bx\d+\b|\bpzas?\b|\bpiezas\b`)
	diameterRe  = regexp.MustCompile(`(?i)[øØo\-]?\s?(?:diam|d\s*[:=]*)?\s*(\d{1,3})\s*(?:mm)?`)
)

// DiameterCuts are the bucket boundaries in mm: [..10], (10..30], (30..60], >60.
var DiameterCuts = []int{10, 30, 60}

// TextLengthCuts bucket the token count: [..6], (6..15], >15.
var TextLengthCuts = []int{6, 15}

// Features is the structured output of Extract.
type Features struct {
	Materials map[string]bool
	Processes map[string]bool
	Domain    map[string]bool

	HasThread    bool
	HasTolerance bool
	MultiPart    bool

	DiameterBucket []int // one-hot over len(DiameterCuts)+1
	TextBucket     []int // one-hot over len(TextLengthCuts)+1
}

// Tags returns the canonical token set used for skill overlap: detected
// materials, processes, and domain tags, order-stable.
func (f Features) Tags() []string {
	var out []string
	appendMatched := func(rules []rule, hits map[string]bool) {
		for _, r := range rules {
			if hits[r.token] {
				out = append(out, r.token)
			}
		}
	}
	appendMatched(materialRules, f.Materials)
	appendMatched(processRules, f.Processes)
	appendMatched(domainRules, f.Domain)
	return out
}

// ComplexityScore is a 0..1 summary of how loaded the description is:
// detected processes plus flags, normalized. Used for the estimate buffer.
func (f Features) ComplexityScore() float64 {
	n := 0
	for _, on := range f.Processes {
		if on {
			n++
		}
	}
	if f.HasThread {
		n++
	}
	if f.HasTolerance {
		n++
	}
	if f.MultiPart {
		n++
	}
	score := float64(n) / 6.0
	if score > 1 {
		score = 1
	}
	return score
}

func matchRules(desc string, rules []rule) map[string]bool {
	out := make(map[string]bool, len(rules))
	for _, r := range rules {
		hit := false
		for _, p := range r.patterns {
			if strings.Contains(desc, p) {
				hit = true
				break
			}
		}
		if !hit && r.re != nil && r.re.MatchString(desc) {
			hit = true
		}
		out[r.token] = hit
	}
	return out
}

func bucketize(n int, cuts []int) []int {
	out := make([]int, len(cuts)+1)
	idx := len(cuts)
	for i, c := range cuts {
		if n <= c {
			idx = i
			break
		}
	}
	out[idx] = 1
	return out
}

// Extract parses a raw description into Features. Same input always yields
// the same output; empty input yields all-false features.
func Extract(raw string) Features {
	desc := strings.ToLower(raw)

	f := Features{
		Materials: matchRules(desc, materialRules),
		Processes: matchRules(desc, processRules),
		Domain:    matchRules(desc, domainRules),
	}

	f.HasThread = f.Processes[ProcThreading] || threadRe.MatchString(desc)
	f.HasTolerance = strings.Contains(desc, "±") || strings.Contains(desc, "+/-") || toleranceRe.MatchString(desc)
	f.MultiPart = multiRe.MatchString(desc)

	diam := 0
	if m := diameterRe.FindStringSubmatch(desc); len(m) > 1 && m[1] != "" {
		// best-effort; non-numbers are impossible given the pattern
		for _, ch := range m[1] {
			diam = diam*10 + int(ch-'0')
		}
	}
	f.DiameterBucket = bucketize(diam, DiameterCuts)

	tokens := len(strings.Fields(desc))
	f.TextBucket = bucketize(tokens, TextLengthCuts)

	return f
}
