package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/plan"
	"github.com/ethereum/go-ethereum/common"
)

// resolve turns an argument template into a concrete value. Artifact
// references only resolve to addresses confirmed earlier in this run, never to
// predicted ones.
func (r *run) resolve(ctx context.Context, step string, arg plan.Arg) (any, error) {
	switch {
	case arg.Artifact != "":
		return r.artifactAddress(step, arg.Artifact)
	case arg.Profile != "":
		address, ok := r.profile.Address(arg.Profile)
		if !ok {
			return nil, failure.Configuration(
				fmt.Sprintf("step '%s'", step),
				fmt.Errorf("network '%s' has no address '%s'", r.profile.Name, arg.Profile),
			)
		}
		return address, nil
	case arg.Peer != "":
		peer, ok := r.profile.Peer(arg.Peer)
		if !ok {
			return nil, failure.Configuration(
				fmt.Sprintf("step '%s'", step),
				fmt.Errorf("'%s' is not a peer of network '%s'", arg.Peer, r.profile.Name),
			)
		}
		return peer.Selector, nil
	case arg.State != nil:
		return r.readState(ctx, step, *arg.State)
	case arg.Amount != nil:
		amount, err := arg.Amount.Int()
		if err != nil {
			return nil, failure.Configuration(fmt.Sprintf("step '%s'", step), err)
		}
		return amount, nil
	case arg.List != nil:
		return r.resolveAll(ctx, step, arg.List)
	default:
		return arg.Value, nil
	}
}

func (r *run) resolveAll(ctx context.Context, step string, args []plan.Arg) ([]any, error) {
	values := make([]any, 0, len(args))
	for _, arg := range args {
		v, err := r.resolve(ctx, step, arg)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *run) artifactAddress(step, name string) (common.Address, error) {
	address, ok := r.addresses[name]
	if !ok {
		return common.Address{}, &failure.UnresolvedDependencyError{Step: step, Artifact: name}
	}
	return address, nil
}

func (r *run) readState(ctx context.Context, step string, ref plan.StateRef) (any, error) {
	address, err := r.artifactAddress(step, ref.Artifact)
	if err != nil {
		return nil, err
	}

	spec, ok := r.plan.Artifact(ref.Artifact)
	if !ok {
		return nil, &failure.UnresolvedDependencyError{Step: step, Artifact: ref.Artifact}
	}

	args, err := r.resolveAll(ctx, step, ref.Args)
	if err != nil {
		return nil, err
	}

	return r.gateway.ReadState(ctx, address, spec.Contract, ref.Method, args)
}

// resolveTarget resolves the contract an action calls.
func (r *run) resolveTarget(ctx context.Context, step string, arg plan.Arg) (common.Address, error) {
	v, err := r.resolve(ctx, step, arg)
	if err != nil {
		return common.Address{}, err
	}

	address, ok := asAddress(v)
	if !ok {
		return common.Address{}, failure.Configuration(
			fmt.Sprintf("step '%s'", step),
			fmt.Errorf("target %s is not an address", arg),
		)
	}
	return address, nil
}

func asAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case string:
		if common.IsHexAddress(value) {
			return common.HexToAddress(value), true
		}
	}
	return common.Address{}, false
}

func asBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		return value, value != nil
	case string:
		return new(big.Int).SetString(strings.TrimSpace(value), 0)
	case int:
		return big.NewInt(int64(value)), true
	case int64:
		return big.NewInt(value), true
	case uint64:
		return new(big.Int).SetUint64(value), true
	}
	return nil, false
}
