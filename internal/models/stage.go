package models

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/myrjola/directorscut/internal/errors"
)

// Stage is a step of the guided conversation. Stages are strictly ordered from StageInitial to StageFinal.
type Stage string

const (
	StageInitial  Stage = "initial"
	StageDetail1  Stage = "detail_1"
	StageDetail2  Stage = "detail_2"
	StageDetail3  Stage = "detail_3"
	StageDraft    Stage = "draft"
	StageFeedback Stage = "feedback"
	StageFinal    Stage = "final"
)

// MaxDetail is the number of detail stages.
const MaxDetail = 3

// ErrInvalidStage is returned when a value outside the seven stages is used as a Stage.
var ErrInvalidStage = errors.NewSentinel("invalid stage")

var stages = []Stage{
	StageInitial,
	StageDetail1,
	StageDetail2,
	StageDetail3,
	StageDraft,
	StageFeedback,
	StageFinal,
}

// Stages returns all stages in conversation order.
func Stages() []Stage {
	return slices.Clone(stages)
}

// Valid reports whether s is one of the seven stages.
func (s Stage) Valid() bool {
	return slices.Contains(stages, s)
}

// ParseStage converts v to a Stage or fails with ErrInvalidStage.
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.Valid() {
		return "", errors.Wrap(ErrInvalidStage, "parse stage", slog.String("stage", v))
	}
	return s, nil
}

// Next returns the stage one step after s. StageFinal is absorbing.
func (s Stage) Next() Stage {
	i := slices.Index(stages, s)
	if i < 0 || i == len(stages)-1 {
		return s
	}
	return stages[i+1]
}

// DetailIndex returns N for detail_N stages.
func (s Stage) DetailIndex() (int, bool) {
	switch s { //nolint:exhaustive // only detail stages have an index.
	case StageDetail1:
		return 1, true
	case StageDetail2:
		return 2, true //nolint:mnd // detail_2
	case StageDetail3:
		return MaxDetail, true
	default:
		return 0, false
	}
}

// DetailStage returns the detail_N stage for n in [1, MaxDetail].
func DetailStage(n int) (Stage, error) {
	if n < 1 || n > MaxDetail {
		return "", errors.Wrap(ErrInvalidStage, "detail stage out of range", slog.Int("n", n))
	}
	return Stage(fmt.Sprintf("detail_%d", n)), nil
}

// MarshalText implements [encoding.TextMarshaler].
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrap(ErrInvalidStage, "marshal stage", slog.String("stage", string(s)))
	}
	return []byte(s), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. Persisted state naming an unknown stage fails to decode
// instead of being coerced to a guessed stage.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
