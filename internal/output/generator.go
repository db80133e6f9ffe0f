// Package output renders the deployment state of a network as a YAML document
// next to the ledger.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/compose-network/contract-deployer/internal/chain"
	"github.com/compose-network/contract-deployer/internal/infra/filesystem"
	fsjson "github.com/compose-network/contract-deployer/internal/infra/filesystem/json"
	"github.com/compose-network/contract-deployer/internal/ledger"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/plan"
	"gopkg.in/yaml.v3"
)

type Generator struct {
	dir      string
	ledger   ledger.Ledger
	registry *chain.Registry
	writer   filesystem.FileWriter
	logger   *slog.Logger
}

func NewGenerator(dir string, store ledger.Ledger, registry *chain.Registry) *Generator {
	return &Generator{
		dir:      dir,
		ledger:   store,
		registry: registry,
		writer:   fsjson.NewWriter(),
		logger:   logger.Named("output"),
	}
}

// Generate writes <dir>/<network>.yaml from the ledger entries of the plan's
// steps. Only artifacts with a final address are listed as contracts.
func (g *Generator) Generate(ctx context.Context, chainID uint64, p *plan.DeploymentPlan, runID string, warnings []string) (string, error) {
	model, err := g.Build(ctx, chainID, p)
	if err != nil {
		return "", err
	}
	model.RunID = runID
	model.Warnings = warnings

	data, err := yaml.Marshal(model)
	if err != nil {
		return "", fmt.Errorf("failed to marshal output model: %w", err)
	}

	path := filepath.Join(g.dir, p.Network+".yaml")
	if err := g.writer.WriteBytes(path, data); err != nil {
		return "", fmt.Errorf("failed to write output file: %w", err)
	}

	g.logger.With("network", p.Network).With("path", path).Info("deployment output written")

	return path, nil
}

func (g *Generator) Build(ctx context.Context, chainID uint64, p *plan.DeploymentPlan) (*Model, error) {
	entries, err := g.ledger.List(ctx, p.Network)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	model := &Model{
		Network:   p.Network,
		ChainID:   chainID,
		Contracts: make(map[string]ContractConfig, len(p.Artifacts)),
		Actions:   make(map[string]ActionState, len(p.Actions)),
	}

	for _, spec := range p.Artifacts {
		entry, ok := byName[spec.Name]
		if !ok || !entry.HasAddress() {
			continue
		}
		contract := ContractConfig{
			Contract: spec.Contract,
			Address:  entry.ContractAddress().Hex(),
			TxID:     entry.TxID,
			Status:   string(entry.Status),
		}
		if g.registry != nil {
			if compiled, err := g.registry.Contract(spec.Contract); err == nil {
				contract.ABI = SingleQuotedString(compactJSON(compiled.RawABI))
			}
		}
		model.Contracts[spec.Name] = contract
	}

	for _, action := range p.Actions {
		entry, ok := byName[action.Name]
		if !ok {
			continue
		}
		model.Actions[action.Name] = ActionState{Status: string(entry.Status), TxID: entry.TxID}
	}

	return model, nil
}

func compactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
