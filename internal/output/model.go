package output

import (
	"gopkg.in/yaml.v3"
)

type (
	// Model is the deployments/<network>.yaml document consumed by frontends
	// and follow-up scripts.
	Model struct {
		Network   string                    `yaml:"network"`
		ChainID   uint64                    `yaml:"chain-id"`
		RunID     string                    `yaml:"run-id,omitempty"`
		Contracts map[string]ContractConfig `yaml:"contracts"`
		Actions   map[string]ActionState    `yaml:"actions,omitempty"`
		Warnings  []string                  `yaml:"warnings,omitempty"`
	}

	ContractConfig struct {
		Contract string             `yaml:"contract"`
		Address  string             `yaml:"address"`
		TxID     string             `yaml:"tx-id,omitempty"`
		Status   string             `yaml:"status"`
		ABI      SingleQuotedString `yaml:"abi,omitempty"`
	}

	ActionState struct {
		Status string `yaml:"status"`
		TxID   string `yaml:"tx-id,omitempty"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
