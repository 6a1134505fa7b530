package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/james-see/practicetrack/pkg/logger"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/practice/hosts"
	"github.com/james-see/practicetrack/pkg/timemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
	return NewRouter()
}

func testProject() hosts.Project {
	return hosts.Project{
		Name:  "song",
		Tempo: []timemap.TempoPoint{{Time: 0, BPM: 120, Numerator: 4, Denominator: 4}},
		Items: []hosts.ItemRecord{
			{ID: "a", Track: "guitar", Start: 0, End: 4, Media: "a.wav", Selected: true},
			{ID: "b", Track: "guitar", Start: 4, End: 9, Media: "b.wav", Selected: true},
			{ID: "c", Track: "guitar", Start: 9, End: 12, Media: "c.wav"},
		},
	}
}

// expandBody mirrors ExpandResponse without the interface-typed ops
type expandBody struct {
	Project *hosts.Project `json:"project"`
	Empty   bool           `json:"empty"`
	Plan    *struct {
		Delta float64 `json:"delta"`
	} `json:"plan"`
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "healthy")
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/plan", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListPolicies(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/policies", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Policies []string         `json:"policies"`
		Defaults practice.Options `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"trailing", "between", "every"}, body.Policies)
	assert.Equal(t, practice.DefaultOptions(), body.Defaults)
}

func TestPlanEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := postJSON(t, r, "/api/v1/plan", ExpandRequest{
		Project: testProject(),
		Options: &practice.Options{DuplicateCount: 2, SilenceBars: 1},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Ops []struct {
			Kind string `json:"kind"`
		} `json:"ops"`
		Delta        float64 `json:"delta"`
		NewRegionEnd float64 `json:"new_region_end"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.InDelta(t, 13.0, body.Delta, 1e-9)
	assert.InDelta(t, 22.0, body.NewRegionEnd, 1e-9)

	var kinds []string
	for _, op := range body.Ops {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []string{"duplicate", "duplicate", "silence", "duplicate", "duplicate", "silence", "shift-tail"}, kinds)
}

func TestPlanEndpointErrors(t *testing.T) {
	r := newTestRouter(t)

	gapped := testProject()
	gapped.Items[1].Start = 5

	unselected := testProject()
	unselected.Select()

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{"bad json", "not an object", http.StatusBadRequest},
		{"negative count", ExpandRequest{Project: testProject(), Options: &practice.Options{DuplicateCount: -1}}, http.StatusBadRequest},
		{"gap", ExpandRequest{Project: gapped}, http.StatusUnprocessableEntity},
		{"nothing selected", ExpandRequest{Project: unselected}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, r, "/api/v1/plan", tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestExpandEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := postJSON(t, r, "/api/v1/expand", ExpandRequest{
		Project: testProject(),
		Options: &practice.Options{DuplicateCount: 2, SilenceBars: 1},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body expandBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Project)
	assert.False(t, body.Empty)
	require.NotNil(t, body.Plan)
	assert.InDelta(t, 13.0, body.Plan.Delta, 1e-9)

	var starts []float64
	for _, it := range body.Project.TrackItems("guitar") {
		starts = append(starts, it.Start)
	}
	assert.Equal(t, []float64{0, 4, 10, 15, 22}, starts)
}

func TestExpandEndpointEmptySelection(t *testing.T) {
	r := newTestRouter(t)
	p := testProject()
	p.Select()

	w := postJSON(t, r, "/api/v1/expand", ExpandRequest{Project: p})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body expandBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Empty)
	assert.Nil(t, body.Plan)
	assert.Len(t, body.Project.Items, 3)
}

func TestTempoImportExport(t *testing.T) {
	r := newTestRouter(t)
	points := []timemap.TempoPoint{
		{Time: 0, BPM: 120, Numerator: 4, Denominator: 4},
		{Time: 4, BPM: 90, Numerator: 3, Denominator: 4},
	}

	w := postJSON(t, r, "/api/v1/tempo/export", points)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "audio/midi", w.Header().Get("Content-Type"))
	midi := w.Body.Bytes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "tempo.mid")
	require.NoError(t, err)
	_, err = part.Write(midi)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tempo/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Tempo []timemap.TempoPoint `json:"tempo"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tempo, 2)
	assert.InDelta(t, 4.0, body.Tempo[1].Time, 1e-3)
	assert.InDelta(t, 90.0, body.Tempo[1].BPM, 1e-3)
	assert.Equal(t, 3, body.Tempo[1].Numerator)
}

func TestTempoImportWithoutFile(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tempo/import", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTempoExportRejectsBadInput(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/v1/tempo/export", []timemap.TempoPoint{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, r, "/api/v1/tempo/export?resolution=0", []timemap.TempoPoint{{BPM: 120, Numerator: 4, Denominator: 4}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
