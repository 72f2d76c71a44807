package httpapi

import (
	"net/http"

	"github.com/habitatcp/controlplane/internal/cperrors"
	"github.com/habitatcp/controlplane/internal/types"
	"github.com/google/uuid"
)

func (rt *Router) registerRecipes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/recipes", rt.handleListRecipes)
	mux.HandleFunc("POST /api/v1/recipes", rt.handleCreateRecipe)
	mux.HandleFunc("GET /api/v1/recipes/{id}", rt.handleGetRecipe)
	mux.HandleFunc("PUT /api/v1/recipes/{id}", rt.handleUpdateRecipe)
	mux.HandleFunc("DELETE /api/v1/recipes/{id}", rt.handleDeleteRecipe)
	mux.HandleFunc("POST /api/v1/recipes/{id}/execute", rt.handleExecuteRecipe)
	mux.HandleFunc("GET /api/v1/recipes/executions", rt.handleListExecutions)
	mux.HandleFunc("GET /api/v1/recipes/executions/{id}", rt.handleGetExecution)
}

func (rt *Router) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Recipes.ListRecipes())
}

func (rt *Router) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var recipe types.Recipe
	if err := decodeJSON(r, &recipe); err != nil {
		writeError(w, err)
		return
	}
	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	rt.cfg.Recipes.PutRecipe(recipe)
	writeJSON(w, http.StatusCreated, recipe)
}

func (rt *Router) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recipe, ok := rt.cfg.Recipes.GetRecipe(id)
	if !ok {
		writeError(w, cperrors.NotFound("httpapi: no recipe with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (rt *Router) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var recipe types.Recipe
	if err := decodeJSON(r, &recipe); err != nil {
		writeError(w, err)
		return
	}
	recipe.ID = r.PathValue("id")
	rt.cfg.Recipes.PutRecipe(recipe)
	writeJSON(w, http.StatusOK, recipe)
}

func (rt *Router) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	if err := rt.cfg.Recipes.DeleteRecipe(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleExecuteRecipe(w http.ResponseWriter, r *http.Request) {
	executionID, err := rt.cfg.Recipes.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}

func (rt *Router) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.cfg.Recipes.ListExecutions())
}

func (rt *Router) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := rt.cfg.Recipes.GetExecution(id)
	if !ok {
		writeError(w, cperrors.NotFound("httpapi: no execution with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
