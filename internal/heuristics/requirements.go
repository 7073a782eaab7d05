package heuristics

import (
	"strings"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// HardRequirement lists the skills a worker must have to take a job at all.
type HardRequirement struct {
	RequiredSkills []string
	Reasons        []string
}

// BuildHardRequirements derives mandatory skills from extracted features.
// Milling and welding work force those skills; turning-family work (turning,
// threading, tolerance specs) force the turning skill.
func BuildHardRequirements(f textfeat.Features) HardRequirement {
	var req HardRequirement
	add := func(skill, reason string) {
		for _, s := range req.RequiredSkills {
			if s == skill {
				return
			}
		}
		req.RequiredSkills = append(req.RequiredSkills, skill)
		req.Reasons = append(req.Reasons, reason)
	}

	if f.Processes[textfeat.ProcMilling] {
		add(textfeat.ProcMilling, "Requiere fresado")
	}
	if f.Processes[textfeat.ProcWelding] || f.Domain[textfeat.TagHardfacing] || f.Domain[textfeat.TagBuildUp] {
		add(textfeat.ProcWelding, "Requiere soldadura/recargue")
	}
	if f.Processes[textfeat.ProcTurning] || f.Processes[textfeat.ProcThreading] || f.HasTolerance {
		if f.Processes[textfeat.ProcThreading] || f.HasTolerance {
			add(textfeat.ProcTurning, "Requiere torneado de precisión/roscado")
		} else {
			add(textfeat.ProcTurning, "Requiere torneado")
		}
	}
	return req
}

// IsAssistant reports whether a worker is an assistant by role token or by a
// skill that marks them as a helper.
func IsAssistant(skills []string, role string) bool {
	if role == models.RoleAssistant {
		return true
	}
	for _, s := range skills {
		if strings.Contains(strings.ToLower(s), "ayud") {
			return true
		}
	}
	return false
}

// MeetsRequirements reports whether a worker's skill set (plus role token)
// covers every required skill. An empty requirement always passes.
func MeetsRequirements(skills []string, role string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]bool, len(skills)+1)
	for _, s := range skills {
		set[strings.ToLower(s)] = true
	}
	if role != "" {
		set[strings.ToLower(role)] = true
	}
	for _, req := range required {
		if !set[strings.ToLower(req)] {
			return false
		}
	}
	return true
}

// NormalizeSkills maps free-form worker skills (trade names, plurals) onto
// the canonical tokens used by the extractor, deduplicated, order-stable.
func NormalizeSkills(raw []string) []string {
	synonyms := map[string]string{
		"tornero":        textfeat.ProcTurning,
		"fresador":       textfeat.ProcMilling,
		"soldador":       textfeat.ProcWelding,
		"rosquero":       textfeat.ProcThreading,
		"taladro":        textfeat.ProcDrilling,
		"taladrar":       textfeat.ProcDrilling,
		"pulidor":        textfeat.ProcPolishing,
		"corte":          textfeat.ProcDrilling,
		"tren delantero": textfeat.TagFrontEnd,
		"rodamientos":    textfeat.TagBearing,
		"palieres":       textfeat.TagAxleShaft,
		"bujes":          textfeat.TagBushing,
		"bandejas":       textfeat.TagTray,
		"engranajes":     textfeat.TagGear,
		"coronas":        textfeat.TagCrownGear,
		"torneado base":  textfeat.TagBaseTurning,
	}

	seen := make(map[string]bool)
	var out []string
	for _, s := range raw {
		token := strings.ToLower(strings.TrimSpace(s))
		if token == "" {
			continue
		}
		if canon, ok := synonyms[token]; ok {
			token = canon
		}
		token = strings.ReplaceAll(token, " ", "_")
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}

// SkillOverlap scores how well a skill set covers a job's tags: the matched
// fraction in [0,1], plus a binary any-match flag.
func SkillOverlap(skills, tags []string) (matched int, score float64) {
	if len(skills) == 0 || len(tags) == 0 {
		return 0, 0
	}
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		set[strings.ToLower(s)] = true
	}
	for _, t := range tags {
		if set[strings.ToLower(t)] {
			matched++
		}
	}
	score = float64(matched) / float64(len(tags))
	if score > 1 {
		score = 1
	}
	return matched, score
}
