package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/sqlite"
)

// Scenario is a finished short-film scenario.
type Scenario struct {
	ID        string         `db:"id" json:"id"`
	Namespace string         `db:"namespace" json:"-"`
	Director  models.Persona `db:"director" json:"director"`
	Emotion   models.Emotion `db:"emotion" json:"emotion"`
	Vignette  string         `db:"vignette" json:"vignette"`
	Scenario  string         `db:"scenario" json:"scenario"`
	Created   time.Time      `db:"created" json:"created"`
}

// ScenarioRepository archives the final scenarios of finished conversations.
type ScenarioRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewScenarioRepository(db *sqlite.Database, logger *slog.Logger) *ScenarioRepository {
	return &ScenarioRepository{
		db:     db,
		logger: logger.With("source", "ScenarioRepository"),
		now:    time.Now,
	}
}

// Archive stores the final scenario of conv under namespace and returns its ID.
func (r *ScenarioRepository) Archive(ctx context.Context, namespace string, conv *models.Conversation) (string, error) {
	if conv.FinalScenario == "" {
		return "", errors.New("conversation has no final scenario", slog.String("stage", string(conv.Stage)))
	}
	id := uuid.NewString()
	stmt := `INSERT INTO scenarios (id, namespace, director, emotion, vignette, scenario, created)
VALUES (:id, :namespace, :director, :emotion, :vignette, :scenario, :created)`
	if _, err := r.db.ReadWrite.NamedExecContext(ctx, stmt, map[string]any{
		"id":        id,
		"namespace": namespace,
		"director":  string(conv.Persona),
		"emotion":   string(conv.Emotion),
		"vignette":  conv.Vignette,
		"scenario":  conv.FinalScenario,
		"created":   r.now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return "", errors.Wrap(err, "insert scenario", slog.String("namespace", namespace))
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "archived scenario",
		slog.String("id", id), slog.String("director", string(conv.Persona)))
	return id, nil
}

type scenarioRow struct {
	ID        string `db:"id"`
	Namespace string `db:"namespace"`
	Director  string `db:"director"`
	Emotion   string `db:"emotion"`
	Vignette  string `db:"vignette"`
	Scenario  string `db:"scenario"`
	Created   string `db:"created"`
}

// List returns the scenarios archived under namespace, oldest first.
func (r *ScenarioRepository) List(ctx context.Context, namespace string) ([]Scenario, error) {
	var rows []scenarioRow
	stmt := `SELECT id, namespace, director, emotion, vignette, scenario, created
FROM scenarios
WHERE namespace = ?
ORDER BY created, id`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt, namespace); err != nil {
		return nil, errors.Wrap(err, "select scenarios", slog.String("namespace", namespace))
	}

	scenarios := make([]Scenario, 0, len(rows))
	for _, row := range rows {
		created, err := time.Parse(time.RFC3339Nano, row.Created)
		if err != nil {
			return nil, errors.Wrap(err, "parse created", slog.String("id", row.ID))
		}
		scenarios = append(scenarios, Scenario{
			ID:        row.ID,
			Namespace: row.Namespace,
			Director:  models.Persona(row.Director),
			Emotion:   models.Emotion(row.Emotion),
			Vignette:  row.Vignette,
			Scenario:  row.Scenario,
			Created:   created,
		})
	}
	return scenarios, nil
}
