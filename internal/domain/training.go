package domain

import (
	"fmt"
	"time"
)

// Outcome is the observed result of showing a listing to a searcher.
type Outcome string

const (
	OutcomeConverted Outcome = "converted"
	OutcomeContacted Outcome = "contacted"
	OutcomeViewed    Outcome = "viewed"
	OutcomeIgnored   Outcome = "ignored"
)

// Reward maps an outcome to [0,1]; converted > contacted > viewed > ignored.
func (o Outcome) Reward() float64 {
	switch o {
	case OutcomeConverted:
		return 1.0
	case OutcomeContacted:
		return 0.7
	case OutcomeViewed:
		return 0.3
	default:
		return 0
	}
}

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case OutcomeConverted, OutcomeContacted, OutcomeViewed, OutcomeIgnored:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

type TrainingSample struct {
	ListingID  string          `json:"listing_id"`
	Components ScoreComponents `json:"components"`
	Outcome    Outcome         `json:"outcome"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ModelState is the optimizer's persisted view.
type ModelState struct {
	Weights       WeightConfig     `json:"weights"`
	TrainingData  []TrainingSample `json:"training_data"`
	LastTrainedAt *time.Time       `json:"last_trained_at,omitempty"`
	Accuracy      float64          `json:"accuracy"`
}
