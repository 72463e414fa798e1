package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hotosm/mapcampaign/internal/apperr"
	"github.com/hotosm/mapcampaign/internal/model"
	"github.com/hotosm/mapcampaign/internal/store"
)

type fakeStore struct {
	campaigns map[string]model.Campaign
	running   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{campaigns: map[string]model.Campaign{}, running: map[string]bool{}}
}

func (f *fakeStore) Save(c model.Campaign) (string, error) {
	f.campaigns[c.UUID] = c
	return c.UUID, nil
}

func (f *fakeStore) Load(uuid string) (model.Campaign, error) {
	c, ok := f.campaigns[uuid]
	if !ok {
		return model.Campaign{}, apperr.Wrapf(apperr.ErrNotFound, "campaign %s", uuid)
	}
	return c, nil
}

func (f *fakeStore) Update(old, next model.Campaign) (model.Campaign, error) {
	merged := next
	merged.UUID = old.UUID
	merged.CreatedAt = old.CreatedAt
	merged.User = old.User
	f.campaigns[old.UUID] = merged
	return merged, nil
}

func (f *fakeStore) Delete(uuid string) error {
	delete(f.campaigns, uuid)
	return nil
}

func (f *fakeStore) IsRunning(uuid string) (bool, error) {
	return f.running[uuid], nil
}

func (f *fakeStore) List() ([]store.ListItem, error) {
	var out []store.ListItem
	for _, c := range f.campaigns {
		out = append(out, store.ListItem{Campaign: c})
	}
	return out, nil
}

func (f *fakeStore) OutputPath(uuid string) string { return "" }

type fakeRunner struct {
	enqueued []string
}

func (f *fakeRunner) Enqueue(uuid string) error {
	f.enqueued = append(f.enqueued, uuid)
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(u model.User) (string, error) { return "tok-" + u.Name, nil }

func (fakeTokens) Verify(tok string) (model.User, error) {
	switch tok {
	case "tok-alice":
		return model.User{ID: 1, Name: "alice"}, nil
	case "tok-mallory":
		return model.User{ID: 2, Name: "mallory"}, nil
	default:
		return model.User{}, errors.New("invalid token")
	}
}

type fakeReady struct{}

func (fakeReady) Readiness() (bool, int) { return true, 1 }

func newTestServer() (*Server, *fakeStore, *fakeRunner) {
	st := newFakeStore()
	rn := &fakeRunner{}
	s := New(st, rn, fakeTokens{}, fakeReady{}, nil)
	return s, st, rn
}

func validCampaignJSON() []byte {
	c := model.Campaign{
		GeometryTypes: []model.GeometryType{model.GeometryPoints},
		Tags:          model.SearchTagMap{"building": {}},
		Geom: model.CampaignGeom{
			Type: "FeatureCollection",
			Features: []model.PolygonFeature{{
				Type: "Feature",
				Geometry: model.PolygonGeometry{
					Type:        "Polygon",
					Coordinates: [][]model.LonLat{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}},
				},
			}},
		},
	}
	b, _ := json.Marshal(c)
	return b
}

func TestCreateCampaignRequiresAuth(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/campaign", bytes.NewReader(validCampaignJSON()))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestCreateCampaignEnqueuesRun(t *testing.T) {
	s, st, rn := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/campaign", bytes.NewReader(validCampaignJSON()))
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct{ UUID string `json:"uuid"` }
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UUID == "" {
		t.Fatal("expected non-empty uuid")
	}
	if len(rn.enqueued) != 1 || rn.enqueued[0] != resp.UUID {
		t.Fatalf("enqueued = %v, want [%s]", rn.enqueued, resp.UUID)
	}
	if st.campaigns[resp.UUID].User.Name != "alice" {
		t.Fatalf("creator = %q, want alice", st.campaigns[resp.UUID].User.Name)
	}
}

func TestPatchByNonCreatorForbidden(t *testing.T) {
	s, st, _ := newTestServer()
	st.campaigns["c1"] = model.Campaign{UUID: "c1", User: model.User{ID: 1, Name: "alice"}}

	req := httptest.NewRequest(http.MethodPatch, "/campaign/c1", bytes.NewReader(validCampaignJSON()))
	req.Header.Set("Authorization", "Bearer tok-mallory")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestPatchByCreatorSucceedsAndPreservesUUID(t *testing.T) {
	s, st, _ := newTestServer()
	st.campaigns["c1"] = model.Campaign{UUID: "c1", User: model.User{ID: 1, Name: "alice"}}

	req := httptest.NewRequest(http.MethodPatch, "/campaign/c1", bytes.NewReader(validCampaignJSON()))
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if st.campaigns["c1"].UUID != "c1" {
		t.Fatalf("uuid changed: %q", st.campaigns["c1"].UUID)
	}
}

func TestPatchWhileRunningIsConflict(t *testing.T) {
	s, st, _ := newTestServer()
	st.campaigns["c1"] = model.Campaign{UUID: "c1", User: model.User{ID: 1, Name: "alice"}}
	st.running["c1"] = true

	req := httptest.NewRequest(http.MethodPatch, "/campaign/c1", bytes.NewReader(validCampaignJSON()))
	req.Header.Set("Authorization", "Bearer tok-alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestGetMissingCampaignReturns404(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/campaign/nope", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestResultsWhileRunningReturns409(t *testing.T) {
	s, st, _ := newTestServer()
	st.campaigns["c1"] = model.Campaign{UUID: "c1"}
	st.running["c1"] = true

	req := httptest.NewRequest(http.MethodGet, "/results/c1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestIssueToken(t *testing.T) {
	s, _, _ := newTestServer()
	body := bytes.NewReader([]byte(`{"id":1,"name":"alice"}`))
	req := httptest.NewRequest(http.MethodPost, "/token", body)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct{ Token string `json:"token"` }
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "tok-alice" {
		t.Fatalf("token = %q, want tok-alice", resp.Token)
	}
}
