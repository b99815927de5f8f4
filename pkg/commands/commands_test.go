package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"d365odata/pkg/dynamics"
)

const entitiesBody = `{"value":[
  {"Name":"CustomersV3","EntitySetName":"CustomersV3","IsReadOnly":false,"Properties":[{"Name":"dataAreaId","IsKey":true},{"Name":"CustomerAccount","IsKey":true}]},
  {"Name":"CustomerGroups","EntitySetName":"CustomerGroups","IsReadOnly":false,"Properties":[{"Name":"CustomerGroupId","IsKey":true}]}
]}`

const enumsBody = `{"value":[
  {"Name":"NoYes","LabelId":"@SYS1","Members":[{"Name":"Yes","Value":1,"LabelId":"@SYS2"},{"Name":"No","Value":0,"LabelId":"@SYS3"}]},
  {"Name":"ABC","LabelId":"@SYS4","Members":[{"Name":"None","Value":0,"LabelId":"@SYS5"}]}
]}`

type harness struct {
	t          *testing.T
	server     *httptest.Server
	storePath  string
	envFile    string
	logs       *observer.ObservedLogs
	logger     *zap.Logger
	tokenCalls atomic.Int32
	lastQuery  atomic.Value
	status     int
	body       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, key := range []string{
		"DYNAMICS_API_BASE_URL", "DYNAMICS_URL", "DYNAMICS_SYSTEM_URL", "DYNAMICS_TENANT_ID", "DYNAMICS_TENANT",
		"DYNAMICS_CLIENT_ID", "DYNAMICS_CLIENT_SECRET", "DYNAMICS_TOKEN", "DYNAMICS_AUTHORITY", "DYNAMICS_TIMEOUT", "DYNAMICS_VERBOSE",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	core, logs := observer.New(zap.DebugLevel)
	h := &harness{
		t:         t,
		storePath: filepath.Join(dir, "store.yaml"),
		envFile:   filepath.Join(dir, "missing.env"),
		logs:      logs,
		logger:    zap.New(core),
		status:    http.StatusOK,
		body:      entitiesBody,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tenant-1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		h.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":"3599","access_token":"issued-token"}`))
	})
	mux.HandleFunc("/metadata/", func(w http.ResponseWriter, r *http.Request) {
		h.lastQuery.Store(r.URL.Query().Get("$filter"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(h.status)
		_, _ = w.Write([]byte(h.body))
	})
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) connectionArgs() []string {
	return []string{
		"--url", h.server.URL,
		"--tenant", "tenant-1",
		"--client-id", "app-id",
		"--client-secret", "app-secret",
		"--authority", h.server.URL,
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := NewRootCmd(h.logger, zap.NewAtomicLevel())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config-file", h.storePath, "--env-file", h.envFile))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPublicEntity_NamesOnly(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"public-entity", "--entity-name", "customersv3", "--out-names-only"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "DataEntityName")
	assert.Contains(t, out, "CustomerGroups")
	assert.Equal(t, "(tolower(Name) eq tolower('customersv3') or tolower(EntitySetName) eq tolower('customersv3'))", h.lastQuery.Load())
	assert.Equal(t, int32(1), h.tokenCalls.Load())
}

func TestPublicEntity_AsJSON(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"public-entity", "--entity-name-contains", "customer", "--output-as-json"}, h.connectionArgs()...)...)
	require.NoError(t, err)

	var entities []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entities))
	require.Len(t, entities, 2)
	assert.Equal(t, "CustomerGroups", entities[0]["Name"])
	assert.Equal(t, "CustomersV3", entities[1]["Name"])
}

func TestPublicEntity_KeysOnly(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"public-entity", "--keys-only"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "dataAreaId, CustomerAccount")
}

func TestPublicEntity_RawOutput(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"public-entity", "--raw-output", "--out-names-only"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.JSONEq(t, entitiesBody, out, "raw output wins over projections")
}

func TestPublicEntity_RawOutputKeepsDocument(t *testing.T) {
	h := newHarness(t)
	h.body = `{"value":[],"@odata.context":"https://fo.example.com/$metadata","@odata.count":9007199254740993}`

	out, err := h.run(append([]string{"public-entity", "--raw-output"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "9007199254740993")
	assert.Less(t, strings.Index(out, `"value"`), strings.Index(out, `"@odata.context"`), "server key order is kept")
	assert.Less(t, strings.Index(out, `"@odata.context"`), strings.Index(out, `"@odata.count"`))
}

func TestPublicEntity_StaticToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("public-entity", "--url", h.server.URL, "--token", "Bearer pre-fetched")
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.tokenCalls.Load())
}

func TestPublicEntity_FailureIsWarningByDefault(t *testing.T) {
	h := newHarness(t)
	h.status = http.StatusInternalServerError
	h.body = `{"error":"boom"}`

	out, err := h.run(append([]string{"public-entity", "--entity-name", "CustomersV3"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Empty(t, out)

	warnings := h.logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "CustomersV3", warnings[0].ContextMap()["term"])
}

func TestPublicEntity_EnableException(t *testing.T) {
	h := newHarness(t)
	h.status = http.StatusForbidden

	_, err := h.run(append([]string{"public-entity", "--entity-name", "CustomersV3", "--enable-exception"}, h.connectionArgs()...)...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamics.ErrAuthentication))
	assert.Contains(t, err.Error(), "CustomersV3")
}

func TestPublicEntity_MissingURL(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("public-entity", "--entity-name", "CustomersV3", "--tenant", "tenant-1",
		"--client-id", "app-id", "--client-secret", "app-secret", "--authority", h.server.URL, "--enable-exception")
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamics.ErrConfiguration))
	assert.Equal(t, int32(0), h.tokenCalls.Load())
}

func TestPublicEntity_MutuallyExclusiveFlags(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(append([]string{"public-entity", "--entity-name", "a", "--entity-name-contains", "b"}, h.connectionArgs()...)...)
	require.Error(t, err)
}

func TestPublicEnum_Flattened(t *testing.T) {
	h := newHarness(t)
	h.body = enumsBody

	out, err := h.run(append([]string{"public-enum", "--enum-name", "NoYes", "--output-as-json"}, h.connectionArgs()...)...)
	require.NoError(t, err)

	var values []dynamics.EnumValue
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	require.Len(t, values, 3)
	assert.Equal(t, dynamics.EnumValue{EnumName: "ABC", EnumValueName: "None", EnumIntValue: 0, EnumValueLabelID: "@SYS5"}, values[0])
	assert.Equal(t, "No", values[1].EnumValueName)
	assert.Equal(t, "Yes", values[2].EnumValueName)
	assert.Equal(t, "(tolower(Name) eq tolower('NoYes') or tolower(LabelId) eq tolower('NoYes'))", h.lastQuery.Load())
}

func TestPublicEnum_Table(t *testing.T) {
	h := newHarness(t)
	h.body = enumsBody

	out, err := h.run(append([]string{"public-enum"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "EnumValueLabelId")
	assert.Contains(t, out, "NoYes")
}

func TestToken(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"token"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Equal(t, "Bearer issued-token\n", out)
}

func TestConfigLifecycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(append([]string{"config", "add", "--name", "uat"}, h.connectionArgs()...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `Saved configuration "uat"`)

	_, err = h.run("config", "add", "--name", "uat", "--url", "https://other.example.com")
	require.Error(t, err)

	_, err = h.run("config", "add", "--name", "prod", "--url", "https://prod.example.com")
	require.NoError(t, err)

	out, err = h.run("config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "uat")
	assert.Contains(t, out, "prod")
	assert.NotContains(t, out, "app-secret")

	// The first configuration added is active, so no connection flags are needed.
	out, err = h.run("public-entity", "--out-names-only", "--enable-exception")
	require.NoError(t, err)
	assert.Contains(t, out, "CustomersV3")

	_, err = h.run("config", "set-active", "prod")
	require.NoError(t, err)

	out, err = h.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "https://prod.example.com")

	out, err = h.run("config", "show", "--config-name", "uat")
	require.NoError(t, err)
	assert.Contains(t, out, h.server.URL)

	_, err = h.run("config", "remove", "prod")
	require.NoError(t, err)
	_, err = h.run("config", "remove", "prod")
	require.Error(t, err)

	_, err = os.Stat(h.storePath)
	require.NoError(t, err)
}
