package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	assemblyengine "concord/contexts/community-governance/assembly-engine"
	"concord/contexts/community-governance/assembly-engine/ports"
	governancehttp "concord/contexts/community-governance/assembly-engine/transport/http"
)

func newTestServer(t *testing.T) (*Server, assemblyengine.Module) {
	t.Helper()
	module := assemblyengine.NewInMemoryModule(nil, nil)
	module.Store.SetUnit(ports.UnitProjection{
		UnitID:      "unit-a",
		CommunityID: "community-1",
		OccupantID:  "alice",
		Coefficient: 1.0,
	})
	module.Store.SetUnit(ports.UnitProjection{
		UnitID:      "unit-b",
		CommunityID: "community-1",
		OccupantID:  "bob",
		Coefficient: 1.0,
	})
	return New(module, nil, ":0"), module
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, subject string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("X-User-Id", subject)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestAssemblyLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	h := server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/assemblies", governancehttp.CreateAssemblyRequest{
		CommunityID:       "community-1",
		Title:             "Annual assembly",
		Type:              "ordinary",
		ScheduledAt:       time.Now().UTC().Add(24 * time.Hour),
		RequiredQuorumPct: 50,
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	assembly := decodeBody[governancehttp.AssemblyResponse](t, rec)
	if assembly.Status != "scheduled" || assembly.AssemblyID == "" {
		t.Fatalf("created assembly = %+v", assembly)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/start", assembly.AssemblyID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/ballots", assembly.AssemblyID), governancehttp.OpenBallotRequest{
		Question:     "Approve the budget?",
		OptionLabels: []string{"Yes", "No"},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open ballot: status %d body %s", rec.Code, rec.Body.String())
	}
	ballot := decodeBody[governancehttp.BallotResponse](t, rec)
	if len(ballot.Options) != 2 {
		t.Fatalf("ballot = %+v", ballot)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/ballots/%s/votes", ballot.BallotID), governancehttp.CastVoteRequest{
		UnitID:   "unit-a",
		OptionID: ballot.Options[0].OptionID,
	}, "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("cast vote: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/v1/assemblies/%s/quorum", assembly.AssemblyID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quorum: status %d body %s", rec.Code, rec.Body.String())
	}
	quorum := decodeBody[governancehttp.QuorumResponse](t, rec)
	if quorum.ParticipationPct != 50 || !quorum.QuorumMet {
		t.Fatalf("quorum = %+v, want 50%% met", quorum)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/close", assembly.AssemblyID), governancehttp.CloseAssemblyRequest{
		Notes: "decided",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d body %s", rec.Code, rec.Body.String())
	}
	closed := decodeBody[governancehttp.AssemblyResponse](t, rec)
	if closed.Status != "closed" || closed.FinalParticipationPct == nil || *closed.FinalParticipationPct != 50 {
		t.Fatalf("closed assembly = %+v", closed)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/v1/assemblies/%s/results", assembly.AssemblyID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("results: status %d body %s", rec.Code, rec.Body.String())
	}
	results := decodeBody[governancehttp.ResultsResponse](t, rec)
	if results.ParticipationPct != 50 || !results.QuorumMet || len(results.Tallies) != 1 {
		t.Fatalf("results = %+v", results)
	}

	// Closed window: further casts are rejected.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/ballots/%s/votes", ballot.BallotID), governancehttp.CastVoteRequest{
		UnitID:   "unit-b",
		OptionID: ballot.Options[0].OptionID,
	}, "bob")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("vote after close: status %d, want 422", rec.Code)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	server, _ := newTestServer(t)
	h := server.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/assemblies/missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown assembly: status %d, want 404", rec.Code)
	}
	errResp := decodeBody[governancehttp.ErrorResponse](t, rec)
	if errResp.Code != "assembly_not_found" {
		t.Fatalf("error code = %s", errResp.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/assemblies", governancehttp.CreateAssemblyRequest{
		CommunityID:       "community-1",
		Title:             "Bad quorum",
		Type:              "ordinary",
		ScheduledAt:       time.Now().UTC().Add(time.Hour),
		RequiredQuorumPct: 0,
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid quorum: status %d, want 400", rec.Code)
	}

	// Votes need a subject header.
	rec = doJSON(t, h, http.MethodPost, "/v1/ballots/any/votes", governancehttp.CastVoteRequest{
		UnitID:   "unit-a",
		OptionID: "opt",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing subject: status %d, want 400", rec.Code)
	}
	errResp = decodeBody[governancehttp.ErrorResponse](t, rec)
	if errResp.Code != "missing_subject" {
		t.Fatalf("error code = %s", errResp.Code)
	}
}

func TestDelegationFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	h := server.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/assemblies", governancehttp.CreateAssemblyRequest{
		CommunityID:       "community-1",
		Title:             "Delegated assembly",
		Type:              "extraordinary",
		ScheduledAt:       time.Now().UTC().Add(time.Hour),
		RequiredQuorumPct: 30,
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	assembly := decodeBody[governancehttp.AssemblyResponse](t, rec)
	if rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/start", assembly.AssemblyID), nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/delegations", assembly.AssemblyID), governancehttp.AuthorizeDelegationRequest{
		UnitID:     "unit-a",
		DelegateID: "dave",
	}, "alice")
	if rec.Code != http.StatusCreated {
		t.Fatalf("authorize: status %d body %s", rec.Code, rec.Body.String())
	}
	delegation := decodeBody[governancehttp.DelegationResponse](t, rec)
	if delegation.Status != "pending" {
		t.Fatalf("delegation = %+v", delegation)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/delegations/%s/approve", delegation.DelegationID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d body %s", rec.Code, rec.Body.String())
	}

	// A second delegation for the same unit is blocked.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/assemblies/%s/delegations", assembly.AssemblyID), governancehttp.AuthorizeDelegationRequest{
		UnitID:     "unit-a",
		DelegateID: "erin",
	}, "alice")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate delegation: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/v1/delegations/%s/revoke", delegation.DelegationID), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: status %d body %s", rec.Code, rec.Body.String())
	}
}
