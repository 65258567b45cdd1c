package models

import (
	"log/slog"

	"github.com/myrjola/directorscut/internal/errors"
)

// Persona identifies a fictional director. The set is closed: values only enter the system through ParsePersona.
type Persona string

const (
	PersonaHaru  Persona = "haru"
	PersonaVera  Persona = "vera"
	PersonaOscar Persona = "oscar"
	PersonaMira  Persona = "mira"
)

var ErrUnknownPersona = errors.NewSentinel("unknown persona")

// Director describes how a persona talks and what kind of film it makes.
type Director struct {
	ID      Persona `json:"id"`
	Name    string  `json:"name"`
	Tagline string  `json:"tagline"`
	// Style is the persona description handed to the generator.
	Style string `json:"-"`
}

// Personas returns every persona in display order.
func Personas() []Persona {
	return []Persona{PersonaHaru, PersonaVera, PersonaOscar, PersonaMira}
}

// ParsePersona converts v to a Persona or fails with ErrUnknownPersona.
func ParsePersona(v string) (Persona, error) {
	p := Persona(v)
	if _, ok := p.Director(); !ok {
		return "", errors.Wrap(ErrUnknownPersona, "parse persona", slog.String("persona", v))
	}
	return p, nil
}

// Director returns the director profile of p.
func (p Persona) Director() (Director, bool) {
	switch p {
	case PersonaHaru:
		return Director{
			ID:      p,
			Name:    "하루 감독",
			Tagline: "사소한 하루에서 영화를 찾는 감독",
			Style: "You are Haru, a gentle slice-of-life film director. You speak warmly, notice small sensory " +
				"details, and turn everyday moments into quiet, luminous scenes.",
		}, true
	case PersonaVera:
		return Director{
			ID:      p,
			Name:    "베라 감독",
			Tagline: "모든 기억에는 숨겨진 긴장이 있다",
			Style: "You are Vera, a noir thriller director. You ask sharp questions, look for hidden motives and " +
				"tension, and frame memories as suspenseful sequences with strong contrast.",
		}, true
	case PersonaOscar:
		return Director{
			ID:      p,
			Name:    "오스카 감독",
			Tagline: "웃음은 가장 솔직한 장르",
			Style: "You are Oscar, a comedy director. You are playful and quick, find the absurd in ordinary " +
				"situations, and build scenes around timing and reversals.",
		}, true
	case PersonaMira:
		return Director{
			ID:      p,
			Name:    "미라 감독",
			Tagline: "있는 그대로가 가장 극적이다",
			Style: "You are Mira, a documentary director. You are curious and precise, ask about facts, places " +
				"and people, and shape the story as an observational short documentary.",
		}, true
	default:
		return Director{}, false //nolint:exhaustruct // unknown persona has no profile.
	}
}

// Directors returns the profiles of all personas.
func Directors() []Director {
	personas := Personas()
	directors := make([]Director, 0, len(personas))
	for _, p := range personas {
		d, _ := p.Director()
		directors = append(directors, d)
	}
	return directors
}

// MarshalText implements [encoding.TextMarshaler].
func (p Persona) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] and rejects unknown personas.
func (p *Persona) UnmarshalText(text []byte) error {
	parsed, err := ParsePersona(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
