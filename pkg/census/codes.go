package census

// Code-to-label tables for the popproj dataset. The API reports RACE and SEX
// as numeric string codes; downstream consumers want display labels.
//
// Source: Census 2017 population projections variable definitions.
var raceLabels = map[string]string{
	"1": "White",
	"2": "Black",
	"3": "AIAN",
	"4": "Asian",
	"5": "NHPI",
	"6": "Two or More Races",
}

var sexLabels = map[string]string{
	"1": "Male",
	"2": "Female",
}

// RaceLabel translates a RACE code to its display label.
// Unrecognized codes pass through unchanged.
func RaceLabel(code string) string {
	if label, ok := raceLabels[code]; ok {
		return label
	}
	return code
}

// SexLabel translates a SEX code to its display label.
// Unrecognized codes pass through unchanged.
func SexLabel(code string) string {
	if label, ok := sexLabels[code]; ok {
		return label
	}
	return code
}
