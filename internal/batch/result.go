package batch

import (
	"decay-fit/internal/fit"
	"decay-fit/internal/model"
)

// Stage is a step of the per-source pipeline:
// loaded → validated → guessed → fit → recorded, or skipped from any step.
type Stage string

const (
	StagePending   Stage = "pending"
	StageLoaded    Stage = "loaded"
	StageValidated Stage = "validated"
	StageGuessed   Stage = "guessed"
	StageFit       Stage = "fit"
	StageRecorded  Stage = "recorded"
	StageSkipped   Stage = "skipped"
)

// Outcome is the tagged result of processing one source: either Recorded
// (Record is set) or Skipped (Reason and Err are set).
type Outcome struct {
	Index  int
	Source string
	Stage  Stage
	// Reached is the last stage completed before the outcome was decided.
	Reached Stage

	Record *model.BatchRecord
	Alias  string
	// Attempts lists amplitude aliases that failed before the chosen one.
	Attempts []fit.AttemptError

	Reason model.Reason
	Err    error
}

func (o Outcome) Recorded() bool { return o.Stage == StageRecorded && o.Record != nil }

// Result is the product of one batch run.
type Result struct {
	Table    model.ResultTable
	Outcomes []Outcome

	Recorded     int
	Skipped      int
	NotConverged int
}

// Empty reports the whole-batch empty-result condition: no source was recorded.
func (r *Result) Empty() bool { return r.Recorded == 0 }

func (r *Result) SkippedOutcomes() []Outcome {
	out := make([]Outcome, 0, r.Skipped)
	for _, o := range r.Outcomes {
		if o.Stage == StageSkipped {
			out = append(out, o)
		}
	}
	return out
}
