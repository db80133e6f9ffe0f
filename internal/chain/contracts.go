package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownContract = errors.New("unknown contract")

const (
	erc20ABI = `[
		{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`
	ownableABI = `[
		{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]}
	]`
)

type (
	CompiledContract struct {
		ABI      abi.ABI
		RawABI   string
		Bytecode []byte
		// Optional build metadata used for source verification.
		SourceName      string
		CompilerVersion string
		StandardInput   json.RawMessage
	}

	// Registry holds the compiled contracts the deployer can create or call.
	Registry struct {
		contracts map[string]CompiledContract
	}
)

// LoadRegistry reads a contracts.json file of the form
// {"Name": {"abi": [...], "bytecode": "0x...", "source": "...", "compiler": "...", "input": {...}}}.
// The ERC20 and Ownable interfaces are always available.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Configuration(fmt.Sprintf("contracts file '%s'", path), err)
	}

	registry, err := ParseRegistry(data)
	if err != nil {
		return nil, failure.Configuration(fmt.Sprintf("contracts file '%s'", path), err)
	}
	return registry, nil
}

// ParseRegistry parses contract JSON data into a Registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var result map[string]struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
		Source   string          `json:"source"`
		Compiler string          `json:"compiler"`
		Input    json.RawMessage `json:"input"`
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse compiled contracts: %w", err)
	}

	registry := builtinRegistry()
	for name, contract := range result {
		parsedABI, err := abi.JSON(strings.NewReader(string(contract.ABI)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		bytecodeHex := strings.TrimPrefix(contract.Bytecode, "0x")
		registry.contracts[name] = CompiledContract{
			ABI:             parsedABI,
			RawABI:          string(contract.ABI),
			Bytecode:        common.Hex2Bytes(bytecodeHex),
			SourceName:      contract.Source,
			CompilerVersion: contract.Compiler,
			StandardInput:   contract.Input,
		}
	}

	return registry, nil
}

// NewRegistry builds a registry from already parsed contracts on top of the
// builtin interfaces.
func NewRegistry(contracts map[string]CompiledContract) *Registry {
	registry := builtinRegistry()
	for name, c := range contracts {
		registry.contracts[name] = c
	}
	return registry
}

func builtinRegistry() *Registry {
	registry := &Registry{contracts: make(map[string]CompiledContract)}
	for name, raw := range map[string]string{"ERC20": erc20ABI, "Ownable": ownableABI} {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("builtin ABI %s is invalid: %v", name, err))
		}
		registry.contracts[name] = CompiledContract{ABI: parsed, RawABI: raw}
	}
	return registry
}

func (r *Registry) Contract(name string) (CompiledContract, error) {
	c, ok := r.contracts[name]
	if !ok {
		return CompiledContract{}, fmt.Errorf("%w: '%s'", ErrUnknownContract, name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PackConstructor ABI-encodes constructor arguments, as block explorers expect
// them for source verification.
func (r *Registry) PackConstructor(contract string, args []any) ([]byte, error) {
	c, err := r.Contract(contract)
	if err != nil {
		return nil, err
	}

	coerced, err := coerceArgs(c.ABI.Constructor.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("failed to convert constructor arguments of %s: %w", contract, err)
	}

	packed, err := c.ABI.Pack("", coerced...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor arguments of %s: %w", contract, err)
	}
	return packed, nil
}

// method looks up a method of contract and converts args to its input types.
func (r *Registry) method(contract, method string, args []any) (CompiledContract, []any, error) {
	c, err := r.Contract(contract)
	if err != nil {
		return CompiledContract{}, nil, err
	}

	m, ok := c.ABI.Methods[method]
	if !ok {
		return CompiledContract{}, nil, fmt.Errorf("contract %s has no method '%s'", contract, method)
	}

	coerced, err := coerceArgs(m.Inputs, args)
	if err != nil {
		return CompiledContract{}, nil, fmt.Errorf("failed to convert arguments of %s.%s: %w", contract, method, err)
	}
	return c, coerced, nil
}
