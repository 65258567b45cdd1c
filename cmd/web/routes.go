package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)

	session := alice.New(app.timeout, app.sessionManager.LoadAndSave, app.noSurf, commonContext, app.namespace(true))
	mux.Handle("GET /api/directors", session.ThenFunc(app.directors))
	mux.Handle("GET /api/session", session.ThenFunc(app.getSession))
	mux.Handle("POST /api/session", session.ThenFunc(app.startSession))
	mux.Handle("DELETE /api/session", session.ThenFunc(app.resetSession))
	mux.Handle("POST /api/session/messages", session.ThenFunc(app.sendMessage))
	mux.Handle("POST /api/session/extend", session.ThenFunc(app.extendSession))
	mux.Handle("GET /api/scenarios", session.ThenFunc(app.listScenarios))

	stream := alice.New(app.serverSentEventMiddleware, app.noSurf, commonContext, app.namespace(false))
	mux.Handle("GET /api/session/events", stream.ThenFunc(app.sessionEvents))

	return app.recoverPanic(app.logRequest(secureHeaders(mux)))
}
