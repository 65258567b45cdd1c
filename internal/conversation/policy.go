package conversation

import (
	"log/slog"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
)

const (
	// NarrativeSkipLength is the input length above which the initial stage jumps straight to detail_2.
	NarrativeSkipLength = 100
	// RichDetailLength is the input length above which a detail answer counts as two detail levels.
	RichDetailLength = 150
	// DraftVerbosityLength is the input length above which an unclassified draft reply asks for feedback.
	DraftVerbosityLength = 50
	// TurnBudget forces the conversation from the detail stages to a draft.
	TurnBudget = 12
)

var (
	narrativeKeywords = []string{"이야기", "경험", "사연", "에피소드", "story", "experience"}
	positiveKeywords  = []string{
		"좋아", "좋네", "완벽", "마음에 들어", "최고", "괜찮", "훌륭", "good", "great", "perfect", "love",
	}
	negativeKeywords = []string{
		"수정", "바꿔", "바꾸", "별로", "아니", "싫", "다시", "고쳐", "추가", "안 ", "않", "못",
		"change", "revise", "not", "don't", "instead",
	}
)

// NextStage decides the stage that follows current after the user sent latestUserText. turnCount is the number of
// messages in the conversation so far.
func NextStage(current models.Stage, turnCount int, latestUserText string) (models.Stage, error) {
	length := utf8.RuneCountInString(latestUserText)

	switch current {
	case models.StageInitial:
		if length > NarrativeSkipLength || containsAny(latestUserText, narrativeKeywords) {
			return models.StageDetail2, nil
		}
		return models.StageDetail1, nil
	case models.StageDetail1, models.StageDetail2, models.StageDetail3:
		n, _ := current.DetailIndex()
		level := 1
		if length > RichDetailLength {
			level = 2
		}
		next := min(n+level, models.MaxDetail)
		if next >= models.MaxDetail || turnCount >= TurnBudget {
			return models.StageDraft, nil
		}
		return models.DetailStage(next)
	case models.StageDraft:
		positive := containsAny(latestUserText, positiveKeywords)
		negative := containsAny(latestUserText, negativeKeywords)
		if positive && !negative {
			return models.StageFinal, nil
		}
		if negative || length > DraftVerbosityLength {
			return models.StageFeedback, nil
		}
		// Short neutral replies are not taken as approval.
		return models.StageFeedback, nil
	case models.StageFeedback, models.StageFinal:
		return models.StageFinal, nil
	default:
		return "", errors.Wrap(models.ErrInvalidStage, "next stage", slog.String("stage", string(current)))
	}
}

// containsAny reports whether text holds one of keywords. Hangul keywords match anywhere since they are followed by
// particles and endings, Latin keywords only match whole words.
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	var words []string
	for _, k := range keywords {
		if !isLatin(k) {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		if words == nil {
			words = strings.FieldsFunc(lower, func(r rune) bool {
				return !unicode.IsLetter(r) && r != '\''
			})
		}
		if slices.Contains(words, k) {
			return true
		}
	}
	return false
}

func isLatin(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
