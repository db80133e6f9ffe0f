package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

const envPrefix = "env:"

var ErrUnknownNetwork = errors.New("unknown network")

type (
	Peer struct {
		Name     string
		Selector uint64
	}

	// NetworkProfile is the immutable per-run view of one target network.
	NetworkProfile struct {
		Name          string `validate:"required"`
		ChainID       uint64 `validate:"required"`
		ChainSelector uint64
		RPCURL        string `validate:"required,url"`
		Confirmations uint64 `validate:"gte=1"`
		DevNetwork    bool
		Addresses     map[string]common.Address
		Peers         []Peer
		Verify        bool
		ExplorerKey   string
		ExplorerURL   string `validate:"omitempty,url"`
		Plans         []string
	}

	// Registry resolves network names against the configured network table.
	Registry struct {
		networks map[configs.NetworkName]configs.Network
		lookup   func(string) (string, bool)
		validate *validator.Validate
		logger   *slog.Logger
	}
)

func NewRegistry(networks map[configs.NetworkName]configs.Network) *Registry {
	return &Registry{
		networks: networks,
		lookup:   os.LookupEnv,
		validate: validator.New(),
		logger:   logger.Named("profile_registry"),
	}
}

// WithEnv replaces the environment lookup used to resolve "env:" references.
func (r *Registry) WithEnv(lookup func(string) (string, bool)) *Registry {
	r.lookup = lookup
	return r
}

// Names returns the registered network names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Load returns the profile registered under name. It performs no I/O besides
// reading environment variables referenced by the explorer key.
func (r *Registry) Load(name string) (NetworkProfile, error) {
	network, ok := r.networks[configs.NetworkName(name)]
	if !ok {
		return NetworkProfile{}, failure.Configuration(fmt.Sprintf("network '%s'", name), ErrUnknownNetwork)
	}

	profile := NetworkProfile{
		Name:          name,
		ChainID:       network.ChainID,
		ChainSelector: network.ChainSelector,
		RPCURL:        network.RPCURL,
		DevNetwork:    network.DevNetwork,
		Addresses:     make(map[string]common.Address, len(network.Addresses)),
		Verify:        network.Verify,
		ExplorerURL:   network.ExplorerURL,
		Plans:         append([]string(nil), network.Plans...),
	}

	var errs []error

	switch {
	case network.DevNetwork:
		profile.Confirmations = 1
	case network.Confirmations < 1:
		errs = append(errs, fmt.Errorf("confirmations must be at least 1, got %d", network.Confirmations))
	default:
		profile.Confirmations = uint64(network.Confirmations)
	}

	for key, value := range network.Addresses {
		if variable, ok := strings.CutPrefix(value, envPrefix); ok {
			resolved, found := r.lookup(variable)
			if !found || resolved == "" {
				// plans that need the address fail when they are built
				r.logger.With("network", name).With("address", key).With("variable", variable).
					Warn("address references an unset environment variable, leaving it out")
				continue
			}
			value = resolved
		}
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("address '%s' is not a hex address: '%s'", key, value))
			continue
		}
		profile.Addresses[key] = common.HexToAddress(value)
	}

	for _, peerName := range network.Peers {
		if peerName == name {
			errs = append(errs, fmt.Errorf("network cannot list itself as a peer"))
			continue
		}
		peer, ok := r.networks[configs.NetworkName(peerName)]
		if !ok {
			errs = append(errs, fmt.Errorf("peer '%s': %w", peerName, ErrUnknownNetwork))
			continue
		}
		if peer.ChainSelector == 0 {
			errs = append(errs, fmt.Errorf("peer '%s' has no chain-selector", peerName))
			continue
		}
		profile.Peers = append(profile.Peers, Peer{Name: peerName, Selector: peer.ChainSelector})
	}

	key, err := r.resolveSecret(network.ExplorerKey)
	if err != nil {
		errs = append(errs, err)
	}
	profile.ExplorerKey = key

	if err := r.validate.Struct(profile); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return NetworkProfile{}, failure.Configuration(fmt.Sprintf("network '%s'", name), errors.Join(errs...))
	}

	if profile.Verify && !profile.VerificationEnabled() {
		r.logger.With("network", name).Warn("verification requested but disabled: development network or missing explorer key")
	}

	return profile, nil
}

// LoadAll loads every name and fails on the first unknown or invalid one, so
// that no chain interaction begins for a partially valid selection.
func (r *Registry) LoadAll(names []string) ([]NetworkProfile, error) {
	profiles := make([]NetworkProfile, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		p, err := r.Load(name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *Registry) resolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, envPrefix) {
		return value, nil
	}

	variable := strings.TrimPrefix(value, envPrefix)
	if variable == "" {
		return "", errors.New("explorer-key references an empty environment variable name")
	}

	resolved, _ := r.lookup(variable)
	return resolved, nil
}

// VerificationEnabled reports whether artifacts deployed to this network should
// be submitted for source verification.
func (p NetworkProfile) VerificationEnabled() bool {
	return p.Verify && !p.DevNetwork && p.ExplorerKey != ""
}

// Address returns the pre-existing dependency contract registered under key.
func (p NetworkProfile) Address(key string) (common.Address, bool) {
	addr, ok := p.Addresses[key]
	return addr, ok
}

func (p NetworkProfile) Peer(name string) (Peer, bool) {
	for _, peer := range p.Peers {
		if peer.Name == name {
			return peer, true
		}
	}
	return Peer{}, false
}
