package main

import (
	"net/http"

	"github.com/myrjola/directorscut/internal/contexthelpers"
	"github.com/myrjola/directorscut/internal/repositories"
)

type scenariosResponse struct {
	Scenarios []repositories.Scenario `json:"scenarios"`
}

// listScenarios returns the finished scenarios of the visitor, oldest first.
func (app *application) listScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := app.scenarios.List(r.Context(), contexthelpers.Namespace(r.Context()))
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	if scenarios == nil {
		scenarios = []repositories.Scenario{}
	}
	app.writeJSON(w, r, http.StatusOK, scenariosResponse{Scenarios: scenarios})
}
