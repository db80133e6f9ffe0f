package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/compose-network/contract-deployer/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig(t *testing.T) configs.Config {
	t.Helper()

	return configs.Config{
		LogLevel: "info",
		Deployer: configs.Deployer{
			PrivateKey:    "env:TEST_DEPLOYER_KEY",
			ContractsFile: filepath.Join(t.TempDir(), "contracts.json"),
		},
		Ledger: configs.Ledger{
			Driver: configs.LedgerDriverFile,
			Dir:    t.TempDir(),
		},
		Retry: configs.Retry{
			MaxAttempts:    3,
			InitialDelay:   time.Millisecond,
			MaxDelay:       time.Millisecond,
			ConfirmTimeout: time.Second,
		},
		Output: configs.Output{Dir: t.TempDir()},
		Networks: map[configs.NetworkName]configs.Network{
			"localhost": {
				ChainID:    31337,
				RPCURL:     "http://127.0.0.1:8545",
				DevNetwork: true,
				Plans:      []string{"gateway"},
				Addresses: map[string]string{
					"ccip-router": "0x0000000000000000000000000000000000000001",
					"link-token":  "0x0000000000000000000000000000000000000002",
					"comm-bus":    "0x0000000000000000000000000000000000000003",
				},
			},
		},
	}
}

func localhostProfile(t *testing.T, cfg configs.Config) profile.NetworkProfile {
	t.Helper()

	prof, err := profile.NewRegistry(cfg.Networks).Load("localhost")
	require.NoError(t, err)
	return prof
}

func TestBuildPlan_BuiltinTemplate(t *testing.T) {
	prof := localhostProfile(t, testConfig(t))

	p, err := buildPlan(prof, "")
	require.NoError(t, err)

	assert.Equal(t, "localhost", p.Network)
	require.Len(t, p.Artifacts, 1)
	assert.Equal(t, "Gateway", p.Artifacts[0].Name)
	// localhost has no peers, so only the funding action remains.
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "FundGateway", p.Actions[0].Name)
	assert.Equal(t, plan.ContractERC20, p.Actions[0].Contract)
}

func TestBuildPlan_MergesTemplates(t *testing.T) {
	cfg := testConfig(t)
	network := cfg.Networks["localhost"]
	network.Plans = []string{"carbon", "gateway"}
	network.Peers = []string{"sepolia"}
	network.Addresses["functions-router"] = "0x0000000000000000000000000000000000000004"
	network.Addresses["tco2-faucet"] = "0x0000000000000000000000000000000000000005"
	network.Addresses["tco2-token"] = "0x0000000000000000000000000000000000000006"
	cfg.Networks["localhost"] = network
	cfg.Networks["sepolia"] = configs.Network{
		ChainID:       11155111,
		ChainSelector: 16015286601757825753,
		RPCURL:        "https://rpc.sepolia.org",
		Confirmations: 1,
		Plans:         []string{"gateway"},
	}

	p, err := buildPlan(localhostProfile(t, cfg), "")
	require.NoError(t, err)

	artifacts, actions, err := p.Order()
	require.NoError(t, err)

	artifactNames := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		artifactNames = append(artifactNames, a.Name)
	}
	assert.Equal(t, []string{"Carbon", "Certificate", "Communicator", "Receiver", "Gateway"}, artifactNames)

	actionNames := make([]string, 0, len(actions))
	for _, a := range actions {
		actionNames = append(actionNames, a.Name)
	}
	assert.Equal(t, []string{"CertificateOwnership", "CommunicatorOwnership", "FundCommunicator", "WhitelistPeer/sepolia", "FundGateway"}, actionNames)
}

func TestBuildPlan_PlanFileOverridesProfile(t *testing.T) {
	prof := localhostProfile(t, testConfig(t))

	file := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
name: custom
artifacts:
  - name: Core
    contract: Core
  - name: Cert
    contract: Cert
    args:
      - artifact: Core
    depends-on: [Core]
actions:
  - name: TransferOwnership
    kind: ownership-transfer
    target:
      artifact: Cert
    operands:
      - artifact: Core
`), 0o644))

	p, err := buildPlan(prof, file)
	require.NoError(t, err)
	require.Len(t, p.Artifacts, 2)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "transferOwnership", p.Actions[0].Method)
}

func TestBuildPlan_NoPlanConfigured(t *testing.T) {
	prof := localhostProfile(t, testConfig(t))
	prof.Plans = nil

	_, err := buildPlan(prof, "")
	require.Error(t, err)
	assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
}

func TestBuildPlan_MissingPlanFile(t *testing.T) {
	prof := localhostProfile(t, testConfig(t))

	_, err := buildPlan(prof, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
}

func TestPrintPlan(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, printPlan(&out, cfg, "localhost", ""))

	var printed struct {
		Network   string `yaml:"network"`
		Artifacts []struct {
			Name string `yaml:"name"`
		} `yaml:"artifacts"`
		Actions []struct {
			Name   string `yaml:"name"`
			Method string `yaml:"method"`
		} `yaml:"actions"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, "localhost", printed.Network)
	require.Len(t, printed.Artifacts, 1)
	assert.Equal(t, "Gateway", printed.Artifacts[0].Name)
	require.Len(t, printed.Actions, 1)
	assert.Equal(t, "transfer", printed.Actions[0].Method)
}

func TestPrintPlan_UnknownNetwork(t *testing.T) {
	var out bytes.Buffer
	err := printPlan(&out, testConfig(t), "nowhere", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, profile.ErrUnknownNetwork)
	assert.Empty(t, out.String())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := ledger.Open(cfg.Ledger)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ledger.Entry{
		Network:   "localhost",
		Name:      "Gateway",
		Kind:      ledger.KindArtifact,
		Status:    ledger.StatusConfirmed,
		Address:   "0x00000000000000000000000000000000000000aa",
		TxID:      "0x01",
		Attempts:  1,
		UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	require.NoError(t, status(ctx, &out, cfg, "localhost"))

	var view statusView
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, "localhost", view.Network)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, statusViewItem{
		Name:      "Gateway",
		Kind:      "artifact",
		Status:    "Confirmed",
		Address:   "0x00000000000000000000000000000000000000aa",
		TxID:      "0x01",
		Attempts:  1,
		UpdatedAt: "2024-01-02T03:04:05Z",
	}, view.Entries[0])
}

func TestStatus_EmptyLedger(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, status(context.Background(), &out, testConfig(t), "localhost"))
	assert.Contains(t, out.String(), "entries: []")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := ledger.Open(cfg.Ledger)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Put(ctx, ledger.Entry{Network: "localhost", Name: "Gateway", Kind: ledger.KindArtifact, Status: ledger.StatusConfirmed}))

	t.Run("refuses without confirmation", func(t *testing.T) {
		err := reset(ctx, cfg, "localhost", "Gateway", false)
		require.Error(t, err)
		assert.ErrorIs(t, err, errResetNotConfirmed)
		assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))

		_, found, err := store.Get(ctx, "localhost", "Gateway")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("removes the entry", func(t *testing.T) {
		require.NoError(t, reset(ctx, cfg, "localhost", "Gateway", true))

		_, found, err := store.Get(ctx, "localhost", "Gateway")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unknown entry", func(t *testing.T) {
		err := reset(ctx, cfg, "localhost", "Gateway", true)
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
		assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))
	})
}

func TestDeploy_FailsBeforeChainInteraction(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*configs.Config)
		networks []string
	}{
		{
			name:     "invalid config",
			mutate:   func(c *configs.Config) { c.Retry.MaxAttempts = 0 },
			networks: []string{"localhost"},
		},
		{
			name:     "negative propagation grace",
			mutate:   func(c *configs.Config) { c.Retry.PropagationGrace = -time.Second },
			networks: []string{"localhost"},
		},
		{
			name:     "unknown network",
			mutate:   func(*configs.Config) {},
			networks: []string{"localhost", "nowhere"},
		},
		{
			name: "network without plan",
			mutate: func(c *configs.Config) {
				network := c.Networks["localhost"]
				network.Plans = nil
				c.Networks["localhost"] = network
			},
			networks: []string{"localhost"},
		},
		{
			name:     "missing contracts file",
			mutate:   func(*configs.Config) {},
			networks: []string{"localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)

			err := deploy(context.Background(), cfg, tt.networks, "")
			require.Error(t, err)
			assert.Equal(t, failure.ExitConfiguration, failure.ExitCode(err))

			entries, err := os.ReadDir(cfg.Ledger.Dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestConnectError(t *testing.T) {
	cfgErr := failure.Configuration("rpc", errors.New("chain id mismatch"))
	assert.Same(t, cfgErr, connectError("sepolia", cfgErr))

	err := connectError("sepolia", &chain.TransientError{Op: "dial", Err: errors.New("connection refused")})
	assert.Equal(t, failure.ExitChain, failure.ExitCode(err))
	assert.Contains(t, err.Error(), "connect to sepolia")
}
