package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisan-sarthi/backend/internal/wizard"
)

func decodeView(t *testing.T, body []byte) wizard.View {
	t.Helper()
	var v wizard.View
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func (s *testServer) createWizard(t *testing.T, token, kind string) wizard.View {
	t.Helper()
	rec := s.doJSON(t, http.MethodPost, "/api/wizards", `{"kind":"`+kind+`"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec.Body.Bytes())
}

func (s *testServer) waitSettled(t *testing.T, token, id string) wizard.View {
	t.Helper()
	var v wizard.View
	require.Eventually(t, func() bool {
		rec := s.doJSON(t, http.MethodGet, "/api/wizards/"+id, "", token)
		if rec.Code != http.StatusOK {
			return false
		}
		v = decodeView(t, rec.Body.Bytes())
		return v.Settled()
	}, 2*time.Second, 10*time.Millisecond)
	return v
}

func TestGetSchema(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(t, http.MethodGet, "/api/wizards/schema/land", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Kind     string         `json:"kind"`
		Steps    []wizard.Step  `json:"steps"`
		Required []string       `json:"required"`
		Defaults map[string]any `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "land", resp.Kind)
	assert.Len(t, resp.Steps, 5)
	assert.Contains(t, resp.Required, "pincode")
	assert.Equal(t, true, resp.Defaults["water"])

	rec = s.doJSON(t, http.MethodGet, "/api/wizards/schema/tractor", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWizardSubmitFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")

	v := s.createWizard(t, token, "product")
	assert.Equal(t, wizard.StatusEditing, v.Status)
	assert.Equal(t, 1, v.Wizard.Step)
	assert.Equal(t, 3, v.Wizard.StepCount)

	rec := s.doJSON(t, http.MethodPut, "/api/wizards/"+v.ID+"/fields",
		`{"fields":{"title":"Onions","sellingPrice":"30","quantity":"500","description":"Red onions"}}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Onions", decodeView(t, rec.Body.Bytes()).Wizard.Fields["title"])

	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/next", "", token)
	assert.Equal(t, 2, decodeView(t, rec.Body.Bytes()).Wizard.Step)
	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/next", "", token)
	assert.Equal(t, 3, decodeView(t, rec.Body.Bytes()).Wizard.Step)
	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/next", "", token)
	assert.Equal(t, 3, decodeView(t, rec.Body.Bytes()).Wizard.Step, "next clamps at the last step")
	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/previous", "", token)
	assert.Equal(t, 2, decodeView(t, rec.Body.Bytes()).Wizard.Step)

	res := s.upload(t, "/api/wizards/"+v.ID+"/files", token,
		part{field: "files", name: "a.jpg", contentType: "image/jpeg", data: []byte("first")},
		part{field: "files", name: "a.jpg", data: []byte("second")},
	)
	require.Equal(t, http.StatusOK, res.Code, string(res.Body))
	selected := decodeView(t, res.Body)
	require.Len(t, selected.Wizard.Files, 2)
	assert.Equal(t, "a.jpg", selected.Wizard.Files[0].File)
	assert.Equal(t, "a.jpg (2)", selected.Wizard.Files[1].File)
	assert.Equal(t, 0, selected.Wizard.Files[0].Progress)

	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/submit", "", token)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	done := s.waitSettled(t, token, v.ID)
	require.Equal(t, wizard.StatusComplete, done.Status, done.Error)
	require.NotNil(t, done.Result)
	assert.Equal(t, "Onions", done.Result.Title)
	assert.Len(t, done.Result.Media, 2)
	assert.NotEmpty(t, done.Result.OwnerID)
	assert.Empty(t, done.Wizard.Files, "wizard resets after success")
	assert.Equal(t, 1, done.Wizard.Step)

	assert.Equal(t, 2, s.store.GetFileCount())
	require.Len(t, s.listings.All(), 1)

	metricsRec := s.doJSON(t, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, metricsRec.Body.String(), `kisan_wizard_submissions_total{kind="product",outcome="ok"} 1`)
}

func TestWizardSubmitWithoutFiles(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")
	v := s.createWizard(t, token, "product")

	rec := s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/submit", "", token)
	require.Equal(t, http.StatusAccepted, rec.Code)

	done := s.waitSettled(t, token, v.ID)
	assert.Equal(t, wizard.StatusError, done.Status)
	assert.Contains(t, done.Error, "files")
	assert.Empty(t, s.listings.All())
	assert.Equal(t, 0, s.store.GetFileCount())
}

func TestWizardOwnership(t *testing.T) {
	s := newTestServer(t)
	alice := s.signIn(t, "9876543210")
	bob := s.signIn(t, "9123456780")
	v := s.createWizard(t, alice, "land")

	rec := s.doJSON(t, http.MethodGet, "/api/wizards/"+v.ID, "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.doJSON(t, http.MethodPost, "/api/wizards/"+v.ID+"/submit", "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.doJSON(t, http.MethodDelete, "/api/wizards/"+v.ID, "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.doJSON(t, http.MethodGet, "/api/wizards/"+v.ID, "", alice)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWizardRequiresSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(t, http.MethodPost, "/api/wizards", `{"kind":"land"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteWizard(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")
	v := s.createWizard(t, token, "land")
	require.Equal(t, 1, s.wizards.Len())

	rec := s.doJSON(t, http.MethodDelete, "/api/wizards/"+v.ID, "", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.wizards.Len())

	rec = s.doJSON(t, http.MethodGet, "/api/wizards/"+v.ID, "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelectFilesRequiresParts(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")
	v := s.createWizard(t, token, "product")

	res := s.upload(t, "/api/wizards/"+v.ID+"/files", token, part{field: "other", name: "x", data: []byte("x")})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestCreateWizardUnknownKind(t *testing.T) {
	s := newTestServer(t)
	token := s.signIn(t, "9876543210")

	rec := s.doJSON(t, http.MethodPost, "/api/wizards", `{"kind":"tractor"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
