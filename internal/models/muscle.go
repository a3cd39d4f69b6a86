package models

import "strings"

// MuscleGroup tags an exercise with one of the ten fixed categories.
type MuscleGroup string

const (
	MuscleChest      MuscleGroup = "Chest"
	MuscleBack       MuscleGroup = "Back"
	MuscleShoulders  MuscleGroup = "Shoulders"
	MuscleBiceps     MuscleGroup = "Biceps"
	MuscleTriceps    MuscleGroup = "Triceps"
	MuscleCore       MuscleGroup = "Core"
	MuscleQuads      MuscleGroup = "Quads"
	MuscleHamstrings MuscleGroup = "Hamstrings"
	MuscleGlutes     MuscleGroup = "Glutes"
	MuscleCalves     MuscleGroup = "Calves"
)

// MuscleGroups lists all valid muscle groups in display order.
func MuscleGroups() []MuscleGroup {
	return []MuscleGroup{
		MuscleChest, MuscleBack, MuscleShoulders, MuscleBiceps, MuscleTriceps,
		MuscleCore, MuscleQuads, MuscleHamstrings, MuscleGlutes, MuscleCalves,
	}
}

// Valid reports whether g is one of the fixed muscle groups in
// canonical form.
func (g MuscleGroup) Valid() bool {
	canonical, ok := muscleGroupMap[strings.ToLower(string(g))]
	return ok && canonical == g
}

// muscleGroupMap maps lowercased names and common synonyms to their
// canonical group, so imports tagged "pecs" or "quadriceps" still land.
var muscleGroupMap = map[string]MuscleGroup{
	"chest":      MuscleChest,
	"pecs":       MuscleChest,
	"back":       MuscleBack,
	"lats":       MuscleBack,
	"shoulders":  MuscleShoulders,
	"delts":      MuscleShoulders,
	"biceps":     MuscleBiceps,
	"triceps":    MuscleTriceps,
	"core":       MuscleCore,
	"abs":        MuscleCore,
	"quads":      MuscleQuads,
	"quadriceps": MuscleQuads,
	"hamstrings": MuscleHamstrings,
	"hams":       MuscleHamstrings,
	"glutes":     MuscleGlutes,
	"calves":     MuscleCalves,
}

// NormalizeMuscleGroup maps a possibly free-form muscle group name to its
// canonical form. Returns the canonical group and true if recognized, or
// the original string and false if unknown.
func NormalizeMuscleGroup(raw string) (MuscleGroup, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if g, ok := muscleGroupMap[lower]; ok {
		return g, true
	}
	return MuscleGroup(raw), false
}
