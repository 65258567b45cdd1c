package main

import (
	"net/http"

	"github.com/myrjola/directorscut/internal/contexthelpers"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
	"github.com/myrjola/directorscut/internal/session"
)

type directorsResponse struct {
	Directors []models.Director `json:"directors"`
	Emotions  []models.Emotion  `json:"emotions"`
}

func (app *application) directors(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, directorsResponse{
		Directors: models.Directors(),
		Emotions:  models.Emotions(),
	})
}

type sessionResponse struct {
	persistence.Snapshot
	Busy      bool `json:"busy"`
	Recovered bool `json:"recovered"`
}

// currentSession returns the session of the visitor, creating it on first use.
func (app *application) currentSession(r *http.Request) *session.Session {
	return app.sessions.get(contexthelpers.Namespace(r.Context()))
}

// liveSession returns the session of the visitor if one is running.
func (app *application) liveSession(r *http.Request) (*session.Session, bool) {
	return app.sessions.lookup(contexthelpers.Namespace(r.Context()))
}

func (app *application) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := app.liveSession(r)
	if !ok {
		app.notFound(w, r, "no conversation has been started")
		return
	}
	snap, err := s.Snapshot()
	if errors.Is(err, session.ErrNotStarted) {
		app.notFound(w, r, "no conversation has been started")
		return
	}
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{Snapshot: snap, Busy: s.Busy(), Recovered: false})
}

type startSessionRequest struct {
	Director models.Persona `json:"director"`
	Emotion  models.Emotion `json:"emotion"`
	Vignette string         `json:"vignette"`
}

func (app *application) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Director == "" || req.Emotion == "" {
		app.clientError(w, r, http.StatusBadRequest, "director and emotion are required")
		return
	}

	s := app.currentSession(r)
	recovered, err := s.Start(r.Context(), req.Director, req.Emotion, req.Vignette)
	if err != nil {
		app.sessionError(w, r, err)
		return
	}
	snap, err := s.Snapshot()
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sessionResponse{Snapshot: snap, Busy: false, Recovered: recovered})
}

func (app *application) resetSession(w http.ResponseWriter, r *http.Request) {
	if err := app.currentSession(r).Reset(r.Context()); err != nil {
		app.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage    models.Message `json:"user_message"`
	Message        models.Message `json:"message"`
	PreviousStage  models.Stage   `json:"previous_stage"`
	Stage          models.Stage   `json:"stage"`
	EnteredOffline bool           `json:"entered_offline"`
	Offline        bool           `json:"offline"`
	DraftScenario  string         `json:"draft_scenario,omitempty"`
	FinalScenario  string         `json:"final_scenario,omitempty"`
}

func (app *application) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	s, ok := app.liveSession(r)
	if !ok {
		app.sessionError(w, r, session.ErrNotStarted)
		return
	}
	out, err := s.Send(r.Context(), req.Text)
	if err != nil {
		app.sessionError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, sendMessageResponse{
		UserMessage:    out.UserMessage,
		Message:        out.Message,
		PreviousStage:  out.PreviousStage,
		Stage:          out.Conversation.Stage,
		EnteredOffline: out.EnteredOffline,
		Offline:        out.Conversation.Offline,
		DraftScenario:  out.Conversation.DraftScenario,
		FinalScenario:  out.Conversation.FinalScenario,
	})
}

type extendResponse struct {
	Extended         bool `json:"extended"`
	RemainingSeconds int  `json:"remaining_seconds"`
}

func (app *application) extendSession(w http.ResponseWriter, r *http.Request) {
	s, ok := app.liveSession(r)
	if !ok {
		app.sessionError(w, r, session.ErrNotStarted)
		return
	}
	extended, remaining, err := s.Extend(r.Context())
	if err != nil {
		app.sessionError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, extendResponse{
		Extended:         extended,
		RemainingSeconds: int(remaining.Seconds()),
	})
}

// sessionError maps the errors of a session operation to a response.
func (app *application) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		app.clientError(w, r, http.StatusConflict, "the director is still answering the previous message")
	case errors.Is(err, session.ErrDiscarded):
		app.clientError(w, r, http.StatusConflict, "the conversation was reset")
	case errors.Is(err, session.ErrNotStarted):
		app.clientError(w, r, http.StatusBadRequest, "no conversation has been started")
	case errors.Is(err, session.ErrEmptyMessage):
		app.clientError(w, r, http.StatusBadRequest, "message is empty")
	case errors.Is(err, models.ErrUnknownPersona), errors.Is(err, models.ErrInvalidEmotion):
		app.clientError(w, r, http.StatusBadRequest, err.Error())
	default:
		app.serverError(w, r, err)
	}
}
