package capture

import (
	"fmt"

	"github.com/cardledger/cardintake/internal/models"
)

// Step is a stage of the capture workflow.
type Step string

const (
	StepFront     Step = "front"
	StepBack      Step = "back"
	StepTilt      Step = "tilt"
	StepRequired  Step = "required"
	StepOptional  Step = "optional"
	StepSubmitted Step = "submitted"
)

// Steps lists the workflow in order.
var Steps = []Step{StepFront, StepBack, StepTilt, StepRequired, StepOptional, StepSubmitted}

var transitions = map[Step][]Step{
	StepFront:     {StepBack},
	StepBack:      {StepTilt},
	StepTilt:      {StepRequired},
	StepRequired:  {StepOptional, StepSubmitted},
	StepOptional:  {StepRequired, StepSubmitted},
	StepSubmitted: {StepFront},
}

// ParseStep validates a step name.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if _, ok := transitions[step]; !ok {
		return "", fmt.Errorf("unknown capture step %q", s)
	}
	return step, nil
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next is the forward successor of s, or "" for the last step.
func (s Step) Next() Step {
	switch s {
	case StepFront:
		return StepBack
	case StepBack:
		return StepTilt
	case StepTilt:
		return StepRequired
	case StepRequired:
		return StepOptional
	case StepOptional:
		return StepSubmitted
	}
	return ""
}

// PhotoSide is the side captured at s, if s is a photo step.
func (s Step) PhotoSide() (models.PhotoSide, bool) {
	switch s {
	case StepFront:
		return models.SideFront, true
	case StepBack:
		return models.SideBack, true
	case StepTilt:
		return models.SideTilt, true
	}
	return "", false
}

// index orders steps for "has the workflow reached s" checks.
func (s Step) index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

func stepForSide(side models.PhotoSide) Step {
	switch side {
	case models.SideBack:
		return StepBack
	case models.SideTilt:
		return StepTilt
	}
	return StepFront
}
