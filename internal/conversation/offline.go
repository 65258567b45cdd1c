package conversation

import (
	"bytes"
	_ "embed"
	"io"
	"log/slog"
	"strconv"

	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"gopkg.in/yaml.v3"
)

// Bucket is a coarse position in the conversation used to pick canned replies.
type Bucket string

const (
	BucketAnalyzing  Bucket = "analyzing"
	BucketDeepening  Bucket = "deepening"
	BucketConcluding Bucket = "concluding"
)

const (
	analyzingMaxTurn = 3
	deepeningMaxTurn = 7
)

// BucketForTurn maps a turn count to its bucket.
func BucketForTurn(turn int) Bucket {
	switch {
	case turn <= analyzingMaxTurn:
		return BucketAnalyzing
	case turn <= deepeningMaxTurn:
		return BucketDeepening
	default:
		return BucketConcluding
	}
}

func buckets() []Bucket {
	return []Bucket{BucketAnalyzing, BucketDeepening, BucketConcluding}
}

// ErrInvalidCatalogue is returned when the offline catalogue misses a bucket or has malformed entries.
var ErrInvalidCatalogue = errors.NewSentinel("invalid offline catalogue")

type cannedChoice struct {
	Text string `yaml:"text"`
	Icon string `yaml:"icon"`
}

type cannedReply struct {
	Message string         `yaml:"message"`
	Choices []cannedChoice `yaml:"choices"`
}

// Catalogue holds the canned replies used in offline mode.
type Catalogue struct {
	entries map[models.Persona]map[Bucket][]cannedReply
}

//go:embed offline.yaml
var defaultCatalogue []byte

// DefaultCatalogue returns the catalogue embedded in the binary.
func DefaultCatalogue() (*Catalogue, error) {
	return LoadCatalogue(bytes.NewReader(defaultCatalogue))
}

// LoadCatalogue decodes a YAML catalogue. Every persona must have at least one reply in every bucket and every reply
// must have zero or three choices.
func LoadCatalogue(r io.Reader) (*Catalogue, error) {
	var raw map[string]map[string][]cannedReply
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode offline catalogue")
	}

	c := &Catalogue{entries: make(map[models.Persona]map[Bucket][]cannedReply, len(raw))}
	for key, byBucket := range raw {
		persona, err := models.ParsePersona(key)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidCatalogue, "unknown persona", slog.String("persona", key))
		}
		c.entries[persona] = make(map[Bucket][]cannedReply, len(byBucket))
		for b, replies := range byBucket {
			c.entries[persona][Bucket(b)] = replies
		}
	}

	for _, persona := range models.Personas() {
		for _, b := range buckets() {
			replies := c.entries[persona][b]
			if len(replies) == 0 {
				return nil, errors.Wrap(ErrInvalidCatalogue, "missing bucket",
					slog.String("persona", string(persona)), slog.String("bucket", string(b)))
			}
			for i, reply := range replies {
				if reply.Message == "" {
					return nil, errors.Wrap(ErrInvalidCatalogue, "empty message",
						slog.String("persona", string(persona)), slog.String("bucket", string(b)), slog.Int("index", i))
				}
				if n := len(reply.Choices); n != 0 && n != models.ChoiceCount {
					return nil, errors.Wrap(ErrInvalidCatalogue, "reply must have zero or three choices",
						slog.String("persona", string(persona)), slog.String("bucket", string(b)), slog.Int("index", i))
				}
			}
		}
	}

	return c, nil
}

// IntN is the subset of [math/rand/v2.Rand] used to pick replies.
type IntN interface {
	IntN(n int) int
}

// Pick chooses a canned reply for persona at turn uniformly at random within the turn's bucket.
func (c *Catalogue) Pick(persona models.Persona, turn int, rng IntN) Reply {
	replies := c.entries[persona][BucketForTurn(turn)]
	if len(replies) == 0 {
		// Unreachable for catalogues built by LoadCatalogue.
		return Reply{Message: "...", Choices: nil, ScenarioText: "", Error: ""}
	}
	canned := replies[rng.IntN(len(replies))]

	reply := Reply{Message: canned.Message, Choices: nil, ScenarioText: "", Error: ""}
	for i, choice := range canned.Choices {
		reply.Choices = append(reply.Choices, models.Choice{
			ID:   strconv.Itoa(i + 1),
			Text: choice.Text,
			Icon: choice.Icon,
		})
	}
	return reply
}
