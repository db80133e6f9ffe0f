package verify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatewayContracts = `{
	"Gateway": {
		"abi": [{"type":"constructor","inputs":[{"name":"router","type":"address"},{"name":"fee","type":"uint256"}]}],
		"bytecode": "0x6000",
		"source": "contracts/Gateway.sol",
		"compiler": "v0.8.19+commit.7dd6d404",
		"input": {"language":"Solidity"}
	}
}`

type fakeExplorer struct {
	t        *testing.T
	submit   apiResponse
	statuses []apiResponse
	checks   atomic.Int32

	mu   sync.Mutex
	form map[string]string
}

func (f *fakeExplorer) submitted(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form[key]
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		require.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.form = make(map[string]string)
		for key := range r.PostForm {
			f.form[key] = r.PostForm.Get(key)
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.submit)
	case http.MethodGet:
		assert.Equal(f.t, "checkverifystatus", r.URL.Query().Get("action"))
		n := int(f.checks.Add(1)) - 1
		if n >= len(f.statuses) {
			n = len(f.statuses) - 1
		}
		_ = json.NewEncoder(w).Encode(f.statuses[n])
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newClient(t *testing.T, handler http.Handler) *ExplorerClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	registry, err := chain.ParseRegistry([]byte(gatewayContracts))
	require.NoError(t, err)

	return NewExplorerClient(server.URL+"/api", "secret", registry, Options{
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		Timeout:      5 * time.Second,
	})
}

func gatewayRequest() Request {
	return Request{
		Network:         "sepolia",
		ChainID:         11155111,
		Address:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Artifact:        "Gateway",
		Contract:        "Gateway",
		ConstructorArgs: []any{"0x0000000000000000000000000000000000000001", "2"},
	}
}

func TestVerify_PollsUntilVerified(t *testing.T) {
	explorer := &fakeExplorer{
		t:      t,
		submit: apiResponse{Status: "1", Message: "OK", Result: "guid-1"},
		statuses: []apiResponse{
			{Status: "0", Message: "NOTOK", Result: "Pending in queue"},
			{Status: "1", Message: "OK", Result: "Pass - Verified"},
		},
	}
	client := newClient(t, explorer)

	require.NoError(t, client.Verify(context.Background(), gatewayRequest()))
	assert.Equal(t, int32(2), explorer.checks.Load())

	assert.Equal(t, "verifysourcecode", explorer.submitted("action"))
	assert.Equal(t, "secret", explorer.submitted("apikey"))
	assert.Equal(t, "11155111", explorer.submitted("chainid"))
	assert.Equal(t, "contracts/Gateway.sol:Gateway", explorer.submitted("contractname"))
	assert.Equal(t, "v0.8.19+commit.7dd6d404", explorer.submitted("compilerversion"))
	assert.Equal(t, `{"language":"Solidity"}`, explorer.submitted("sourceCode"))
	assert.Equal(t,
		"0000000000000000000000000000000000000000000000000000000000000001"+
			"0000000000000000000000000000000000000000000000000000000000000002",
		explorer.submitted("constructorArguements"))
}

func TestVerify_AlreadyVerified(t *testing.T) {
	explorer := &fakeExplorer{
		t:      t,
		submit: apiResponse{Status: "0", Message: "NOTOK", Result: "Contract source code already verified"},
	}
	client := newClient(t, explorer)

	require.NoError(t, client.Verify(context.Background(), gatewayRequest()))
	assert.Zero(t, explorer.checks.Load())
}

func TestVerify_Rejected(t *testing.T) {
	explorer := &fakeExplorer{
		t:      t,
		submit: apiResponse{Status: "1", Message: "OK", Result: "guid-2"},
		statuses: []apiResponse{
			{Status: "0", Message: "NOTOK", Result: "Fail - Unable to verify"},
		},
	}
	client := newClient(t, explorer)

	err := client.Verify(context.Background(), gatewayRequest())
	require.Error(t, err)

	var verr *failure.VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Gateway", verr.Artifact)
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.False(t, failure.IsFatalKind(err))
}

func TestVerify_SubmissionRefused(t *testing.T) {
	explorer := &fakeExplorer{
		t:      t,
		submit: apiResponse{Status: "0", Message: "NOTOK", Result: "Invalid API Key"},
	}
	client := newClient(t, explorer)

	err := client.Verify(context.Background(), gatewayRequest())
	assert.ErrorIs(t, err, ErrNotVerified)
	assert.ErrorContains(t, err, "Invalid API Key")
}

func TestVerify_StillPending(t *testing.T) {
	explorer := &fakeExplorer{
		t:        t,
		submit:   apiResponse{Status: "1", Message: "OK", Result: "guid-3"},
		statuses: []apiResponse{{Status: "0", Result: "Pending in queue"}},
	}
	client := newClient(t, explorer)

	err := client.Verify(context.Background(), gatewayRequest())
	assert.ErrorContains(t, err, "still pending after 5 checks")
}

func TestVerify_HTTPError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.Verify(context.Background(), gatewayRequest())
	assert.ErrorContains(t, err, "HTTP 502")
}

func TestVerify_UnknownContract(t *testing.T) {
	client := newClient(t, http.NotFoundHandler())

	req := gatewayRequest()
	req.Contract = "Missing"
	err := client.Verify(context.Background(), req)
	assert.ErrorIs(t, err, chain.ErrUnknownContract)
}

func TestVerify_ErrorNamesArtifact(t *testing.T) {
	explorer := &fakeExplorer{
		t:      t,
		submit: apiResponse{Status: "0", Message: "NOTOK", Result: "Invalid API Key"},
	}
	client := newClient(t, explorer)

	req := gatewayRequest()
	req.Artifact = "GatewayV2"
	err := client.Verify(context.Background(), req)

	var verr *failure.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "GatewayV2", verr.Artifact)
	assert.Equal(t, "contracts/Gateway.sol:Gateway", explorer.submitted("contractname"))
}
