package api

import (
	"net/http"

	"github.com/mattjoyce/tessera/internal/auth"
)

type route struct {
	method, path, summary, scope string
}

var routes = []route{
	{http.MethodGet, "/status", "Current controller status", auth.ScopeRunRead},
	{http.MethodPost, "/run", "Start a run of the run queue", auth.ScopeRunWrite},
	{http.MethodPost, "/cancel", "Request cancellation of the current run", auth.ScopeRunWrite},
	{http.MethodPost, "/continue", "Release chains parked at a breakpoint", auth.ScopeRunWrite},
	{http.MethodGet, "/cycle-time", "Read the controller cycle time", auth.ScopeRunRead},
	{http.MethodPut, "/cycle-time", "Set the controller cycle time", auth.ScopeRunWrite},
	{http.MethodGet, "/processors", "List processor instances and endpoints", auth.ScopeRunRead},
	{http.MethodGet, "/connections", "Wiring, breakpoints and run queue", auth.ScopeRunRead},
	{http.MethodGet, "/runs", "Journaled runs, newest first", auth.ScopeRunRead},
	{http.MethodGet, "/runs/{runID}", "One journaled run", auth.ScopeRunRead},
	{http.MethodGet, "/events", "Server-sent controller events, optionally filtered by ?types=prefix,...", auth.ScopeRunRead},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the run-control routes.
// x-processors lists the instances currently wired.
func buildOpenAPIDoc(processors []ProcessorInfo) map[string]any {
	paths := map[string]any{}
	for _, rt := range routes {
		item, _ := paths[rt.path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[methodKey(rt.method)] = map[string]any{
			"summary":   rt.summary,
			"x-scope":   rt.scope,
			"security":  []any{map[string]any{"BearerAuth": []string{}}},
			"responses": map[string]any{"200": map[string]any{"description": "OK"}},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Tessera run control",
			"version": "1.0",
		},
		"paths":        paths,
		"x-processors": processors,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
		},
	}
}

func methodKey(m string) string {
	switch m {
	case http.MethodPost:
		return "post"
	case http.MethodPut:
		return "put"
	default:
		return "get"
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	names := s.wiring.Processors()
	procs := make([]ProcessorInfo, 0, len(names))
	for _, name := range names {
		if p, ok := s.wiring.Processor(name); ok {
			procs = append(procs, describeProcessor(p))
		}
	}
	s.writeJSON(w, http.StatusOK, buildOpenAPIDoc(procs))
}
