package api

import (
	"net/http"

	"github.com/mattjoyce/agentgw/internal/profile"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document with the fixed routes and
// one dispatch operation per profile.
func buildOpenAPIDoc(ids []profile.ID) map[string]any {
	profileIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		profileIDs = append(profileIDs, id.String())
	}

	secured := []any{map[string]any{"BearerAuth": []string{}}}
	paths := map[string]any{
		"/dispatch": map[string]any{
			"post": map[string]any{
				"operationId": "dispatch",
				"summary":     "Spawn a coding agent for a prompt",
				"security":    secured,
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{"schema": dispatchSchema(profileIDs)},
					},
				},
				"responses": dispatchResponses(),
			},
		},
		"/profiles": map[string]any{
			"get": map[string]any{"operationId": "listProfiles", "security": secured,
				"responses": map[string]any{"200": map[string]any{"description": "Profiles"}}},
		},
		"/actions/{actionID}": map[string]any{
			"get": map[string]any{"operationId": "getAction", "security": secured,
				"responses": map[string]any{"200": map[string]any{"description": "Action"}, "404": map[string]any{"description": "Not found"}}},
		},
	}

	for _, id := range ids {
		paths["/profiles/"+string(id.Executor)+"/"+id.Variant+"/dispatch"] = map[string]any{
			"post": map[string]any{
				"operationId": string(id.Executor) + "__" + id.Variant,
				"summary":     "Dispatch with profile " + id.String(),
				"tags":        []string{string(id.Executor)},
				"security":    secured,
				"responses":   dispatchResponses(),
			},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "agentgw",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
		},
	}
}

func dispatchSchema(profileIDs []string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"prompt", "executor_profile_id"},
		"properties": map[string]any{
			"prompt":              map[string]any{"type": "string"},
			"executor_profile_id": map[string]any{"type": "string", "enum": profileIDs},
			"working_dir":         map[string]any{"type": "string"},
			"context":             map[string]any{"type": "object"},
		},
	}
}

func dispatchResponses() map[string]any {
	return map[string]any{
		"201": map[string]any{"description": "Agent spawned"},
		"400": map[string]any{"description": "Bad request"},
		"404": map[string]any{"description": "Unknown executor type"},
		"502": map[string]any{"description": "Agent failed to spawn"},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	var ids []profile.ID
	if snap, err := s.profiles.Snapshot(); err == nil {
		ids = snap.IDs()
	}
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(ids))
}
