package model

import "math"

// Dimension names one of the five evaluation axes
type Dimension string

const (
	DimPersuasiveness     Dimension = "persuasiveness"
	DimLogicalCorrectness Dimension = "logical_correctness"
	DimCompleteness       Dimension = "completeness"
	DimConciseness        Dimension = "conciseness"
	DimAgreement          Dimension = "agreement"
)

// Dimensions is the fixed priority order used to break ties for the weakest dimension
var Dimensions = []Dimension{
	DimPersuasiveness,
	DimLogicalCorrectness,
	DimCompleteness,
	DimConciseness,
	DimAgreement,
}

// MinScore and MaxScore bound every rating
const (
	MinScore = 1
	MaxScore = 5
)

// Scores holds the five integer ratings
type Scores struct {
	Persuasiveness     int `json:"persuasiveness"`
	LogicalCorrectness int `json:"logical_correctness"`
	Completeness       int `json:"completeness"`
	Conciseness        int `json:"conciseness"`
	Agreement          int `json:"agreement"`
}

// Get returns the score for a dimension
func (s Scores) Get(d Dimension) int {
	switch d {
	case DimPersuasiveness:
		return s.Persuasiveness
	case DimLogicalCorrectness:
		return s.LogicalCorrectness
	case DimCompleteness:
		return s.Completeness
	case DimConciseness:
		return s.Conciseness
	case DimAgreement:
		return s.Agreement
	}
	return 0
}

// InRange reports whether every score lies in [MinScore, MaxScore]
func (s Scores) InRange() bool {
	for _, d := range Dimensions {
		if v := s.Get(d); v < MinScore || v > MaxScore {
			return false
		}
	}
	return true
}

// Average returns the arithmetic mean rounded to one decimal place
func (s Scores) Average() float64 {
	sum := 0
	for _, d := range Dimensions {
		sum += s.Get(d)
	}
	return math.Round(float64(sum)/float64(len(Dimensions))*10) / 10
}

// Weakest returns the lowest-scoring dimension; ties go to the earlier entry in Dimensions
func (s Scores) Weakest() Dimension {
	weakest := Dimensions[0]
	for _, d := range Dimensions[1:] {
		if s.Get(d) < s.Get(weakest) {
			weakest = d
		}
	}
	return weakest
}

// Evaluation is one round's quality assessment of a draft. Never mutated after creation.
type Evaluation struct {
	Scores            Scores    `json:"scores"`
	Average           float64   `json:"average"`
	Weakest           Dimension `json:"weakest"`
	Question          string    `json:"question"`
	DuplicateQuestion bool      `json:"duplicate_question,omitempty"` // Question repeats one already asked
}
