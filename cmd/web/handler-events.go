package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/directorscut/internal/contexthelpers"
	"github.com/myrjola/directorscut/internal/errors"
)

const keepAliveInterval = 30 * time.Second

// sessionEvents streams the events of the visitor's session as Server Sent Events. The current state is sent first
// as a snapshot event so that a reconnecting client does not miss anything.
func (app *application) sessionEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	namespace := contexthelpers.Namespace(ctx)
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		app.serverError(w, r, errors.Wrap(err, "clear write deadline"))
		return
	}

	events, unsubscribe := app.events.Subscribe(namespace)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if s, ok := app.sessions.lookup(namespace); ok {
		if snap, err := s.Snapshot(); err == nil {
			if err = writeEvent(w, "snapshot", snap); err != nil {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "write snapshot event", errors.SlogError(err))
				return
			}
		}
	}
	if err := rc.Flush(); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "flush event stream", errors.SlogError(err))
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			err = writeEvent(w, string(e.Kind), e)
		case <-keepAlive.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event", slog.String("event", name))
	}
	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return errors.Wrap(err, "write event", slog.String("event", name))
	}
	return nil
}
