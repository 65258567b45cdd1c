package models

import (
	"log/slog"
	"strings"

	"github.com/myrjola/directorscut/internal/errors"
)

// Emotion tags the vignette. It is chosen once per session.
type Emotion string

const (
	EmotionJoy      Emotion = "joy"
	EmotionAnger    Emotion = "anger"
	EmotionSadness  Emotion = "sadness"
	EmotionPleasure Emotion = "pleasure"
)

var ErrInvalidEmotion = errors.NewSentinel("invalid emotion")

// Emotions returns the emotion tags in display order.
func Emotions() []Emotion {
	return []Emotion{EmotionJoy, EmotionAnger, EmotionSadness, EmotionPleasure}
}

// ParseEmotion converts v to an Emotion or fails with ErrInvalidEmotion.
func ParseEmotion(v string) (Emotion, error) {
	switch e := Emotion(strings.ToLower(strings.TrimSpace(v))); e {
	case EmotionJoy, EmotionAnger, EmotionSadness, EmotionPleasure:
		return e, nil
	default:
		return "", errors.Wrap(ErrInvalidEmotion, "parse emotion", slog.String("emotion", v))
	}
}

// PlaceholderVignette is used when a session starts without a vignette of its own.
func (e Emotion) PlaceholderVignette() string {
	switch e {
	case EmotionJoy:
		return "오랜만에 만난 친구와 밤늦게까지 웃으며 걸었던 날."
	case EmotionAnger:
		return "열심히 준비한 발표를 누군가 자기 공으로 가로챈 날."
	case EmotionSadness:
		return "어릴 적 살던 동네가 재개발로 사라진다는 소식을 들은 날."
	case EmotionPleasure:
		return "비 오는 오후, 좋아하는 카페 창가에서 책 한 권을 다 읽은 날."
	default:
		return ""
	}
}

// UnmarshalText implements [encoding.TextUnmarshaler] and rejects unknown emotions.
func (e *Emotion) UnmarshalText(text []byte) error {
	parsed, err := ParseEmotion(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
