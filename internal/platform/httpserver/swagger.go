package httpserver

import "net/http"

// swaggerDoc is the hand-maintained API description served to the swagger
// UI. Keep it in sync with registerRoutes when endpoints change.
const swaggerDoc = `{
  "swagger": "2.0",
  "info": {
    "title": "Concord Assembly Governance API",
    "description": "Assemblies, weighted unit voting, delegations, quorum and results.",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/v1/assemblies": {
      "post": {"summary": "Schedule an assembly", "tags": ["assemblies"], "responses": {"201": {"description": "Created"}}}
    },
    "/v1/assemblies/{assembly_id}": {
      "get": {"summary": "Fetch an assembly", "tags": ["assemblies"], "responses": {"200": {"description": "OK"}}},
      "delete": {"summary": "Delete a non in-progress assembly", "tags": ["assemblies"], "responses": {"204": {"description": "Deleted"}}}
    },
    "/v1/assemblies/{assembly_id}/start": {
      "post": {"summary": "Open an assembly for voting", "tags": ["assemblies"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/close": {
      "post": {"summary": "Close an assembly, immediately or deferred", "tags": ["assemblies"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/cancel": {
      "post": {"summary": "Cancel a scheduled assembly", "tags": ["assemblies"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/ballots": {
      "post": {"summary": "Open a ballot", "tags": ["ballots"], "responses": {"201": {"description": "Created"}}}
    },
    "/v1/ballots/{ballot_id}/votes": {
      "post": {"summary": "Cast or replace a unit vote", "tags": ["ballots"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/delegations": {
      "post": {"summary": "Authorize a voting delegation", "tags": ["delegations"], "responses": {"201": {"description": "Created"}}}
    },
    "/v1/delegations/{delegation_id}/approve": {
      "post": {"summary": "Approve a pending delegation", "tags": ["delegations"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/delegations/{delegation_id}/revoke": {
      "post": {"summary": "Revoke a delegation", "tags": ["delegations"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/quorum": {
      "get": {"summary": "Current or frozen quorum standing", "tags": ["results"], "responses": {"200": {"description": "OK"}}}
    },
    "/v1/assemblies/{assembly_id}/results": {
      "get": {"summary": "Live tallies or the frozen closure snapshot", "tags": ["results"], "responses": {"200": {"description": "OK"}}}
    }
  }
}`

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(swaggerDoc))
}
