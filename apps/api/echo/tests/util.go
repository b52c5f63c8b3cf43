package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/CognicAI/EduLearn-sub001/apps/api/echo"
	"github.com/CognicAI/EduLearn-sub001/core"
	"github.com/CognicAI/EduLearn-sub001/core/auth"
	"github.com/CognicAI/EduLearn-sub001/core/chat"
	"github.com/CognicAI/EduLearn-sub001/core/quota"
	"github.com/CognicAI/EduLearn-sub001/storage/database/inmem"
	"github.com/CognicAI/EduLearn-sub001/tests"
)

var (
	// 40s before the end of the rate window
	now = time.Date(2024, 5, 6, 14, 30, 20, 0, time.UTC)

	errMissingToken = httpErr{Error: "user not authenticated"}
)

type env struct {
	app      *Server
	store    quota.Store
	engine   *testutil.FakeEngine
	tasks    *testutil.SyncRunner
	activity *testutil.ActivityRecorder
	logger   *testutil.Logger
}

// setup builds the API server around an in-memory quota store. A nil engine leaves the chat unconfigured.
func setup(t *testing.T, engine *testutil.FakeEngine, store ...quota.Store) *env {
	quota.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { quota.NowFunc = time.Now })
	testutil.NoSleep(t)

	e := &env{
		store:    inmemdb.NewQuotaStore(inmemdb.Open(), quota.DefaultLimits()),
		engine:   engine,
		tasks:    new(testutil.SyncRunner),
		activity: new(testutil.ActivityRecorder),
		logger:   new(testutil.Logger),
	}
	if len(store) > 0 {
		e.store = store[0]
	}
	validate, translator := testutil.NewValidatorAndTranslator()

	opts := chat.Options{
		Store:    e.store,
		Limits:   quota.DefaultLimits(),
		Activity: e.activity,
		Tasks:    e.tasks,
		Logger:   e.logger,
		Validate: validate,
	}
	if engine != nil {
		opts.Engine = engine
	}
	chatSvc, err := chat.NewService(opts)
	require.NoError(t, err)

	e.app = NewServer(ServerDeps{
		Conf:           &core.Config{AppName: "EduLearn", TestMode: true},
		Logger:         e.logger,
		ChatSvc:        chatSvc,
		Verifier:       auth.NewVerifier(testutil.SecretKey),
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = e.app.Shutdown(context.Background()) })
	return e
}

func (e *env) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	e.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, id auth.Identity) string {
	return testutil.Token(t, id)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func checkRateHeaders(t *testing.T, rec *httptest.ResponseRecorder, remaining string) {
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, remaining, rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1715005860", rec.Header().Get("X-RateLimit-Reset")) // 2024-05-06T14:31:00Z
}
