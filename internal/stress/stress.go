// Package stress maps classifier output onto the labels and advice returned to
// users.
package stress

// Level is the coarse stress classification.
type Level string

const (
	LevelLow  Level = "low"
	LevelHigh Level = "high"
)

// HighClass is the classifier index that means elevated stress.
const HighClass = 1

// Assessment is the user-facing interpretation of a prediction.
type Assessment struct {
	Level           Level    `json:"stress_level"`
	Label           string   `json:"stress_label"`
	Recommendations []string `json:"recommendations"`
}

var (
	high = Assessment{
		Level: LevelHigh,
		Label: "High Stress",
		Recommendations: []string{
			"Take a 15-minute break",
			"Practice deep breathing for 5 minutes",
			"Consider a short walk outside",
		},
	}
	low = Assessment{
		Level: LevelLow,
		Label: "Low Stress",
		Recommendations: []string{
			"Maintain your current routine",
			"Stay hydrated",
			"Consider mindfulness exercises",
		},
	}
)

// Assess returns the bundle for class. Anything other than HighClass is low.
func Assess(class int) Assessment {
	a := low
	if class == HighClass {
		a = high
	}
	a.Recommendations = append([]string(nil), a.Recommendations...)
	return a
}
