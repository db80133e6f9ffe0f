package plan

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/compose-network/contract-deployer/internal/profile"
)

// Contracts used for calls on targets that are not artifacts of the plan.
const (
	ContractERC20   = "ERC20"
	ContractOwnable = "Ownable"
)

type Builder struct {
	logger *slog.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		logger: logger.Named("plan_builder"),
	}
}

// Build turns a template into the concrete plan for one network: peer actions
// are expanded, per-kind defaults are filled in and every profile reference is
// checked against the profile.
func (b *Builder) Build(p profile.NetworkProfile, t Template) (*DeploymentPlan, error) {
	result := &DeploymentPlan{Network: p.Name}

	for _, a := range t.Artifacts {
		spec := a
		spec.Args = cloneArgs(a.Args)
		spec.VerifyArgs = cloneArgs(a.VerifyArgs)
		spec.DependsOn = append([]string(nil), a.DependsOn...)
		if a.Derived != nil {
			derived := *a.Derived
			derived.Args = cloneArgs(a.Derived.Args)
			spec.Derived = &derived
			if !contains(spec.DependsOn, derived.Artifact) {
				spec.DependsOn = append(spec.DependsOn, derived.Artifact)
			}
		}
		result.Artifacts = append(result.Artifacts, spec)
	}

	for _, a := range t.Actions {
		if !a.ForEachPeer {
			result.Actions = append(result.Actions, b.withDefaults(result, cloneAction(a, "")))
			continue
		}

		if len(p.Peers) == 0 {
			b.logger.With("network", p.Name).With("action", a.Name).Warn("network has no peers, for-each-peer action expands to nothing")
		}
		for _, peer := range p.Peers {
			action := cloneAction(a, peer.Name)
			action.Name = fmt.Sprintf("%s/%s", a.Name, peer.Name)
			action.ForEachPeer = false
			result.Actions = append(result.Actions, b.withDefaults(result, action))
		}
	}

	if err := checkProfileRefs(result, p); err != nil {
		return nil, configError(p.Name, err)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	b.logger.
		With("network", p.Name).
		With("template", t.Name).
		With("artifacts", len(result.Artifacts)).
		With("actions", len(result.Actions)).
		Info("deployment plan built")

	return result, nil
}

func (b *Builder) withDefaults(p *DeploymentPlan, a ConfigAction) ConfigAction {
	if a.Method == "" {
		switch a.Kind {
		case KindOwnershipTransfer:
			a.Method = "transferOwnership"
		case KindWhitelistPeer:
			a.Method = "whitelistChain"
		case KindFundTransfer:
			a.Method = "transfer"
		}
	}

	if a.Contract == "" {
		if target, ok := p.Artifact(a.Target.Artifact); ok {
			a.Contract = target.Contract
		} else if a.Kind == KindFundTransfer {
			a.Contract = ContractERC20
		} else {
			a.Contract = ContractOwnable
		}
	}

	if a.Probe == nil {
		switch a.Kind {
		case KindOwnershipTransfer:
			a.Probe = &Probe{Method: "owner"}
		case KindFundTransfer:
			if len(a.Operands) > 0 {
				a.Probe = &Probe{Method: "balanceOf", Args: []Arg{a.Operands[0]}}
			}
		}
	}

	return a
}

func checkProfileRefs(p *DeploymentPlan, prof profile.NetworkProfile) error {
	var errs []error

	check := func(scope string, args []Arg) {
		for _, arg := range args {
			arg.Walk(func(a Arg) {
				if a.Profile != "" {
					if _, ok := prof.Address(a.Profile); !ok {
						errs = append(errs, fmt.Errorf("%s references address '%s' missing from the profile", scope, a.Profile))
					}
				}
				if a.Peer != "" && a.Peer != EachPeer {
					if _, ok := prof.Peer(a.Peer); !ok {
						errs = append(errs, fmt.Errorf("%s references '%s' which is not a peer", scope, a.Peer))
					}
				}
			})
		}
	}

	for _, a := range p.Artifacts {
		check("artifact '"+a.Name+"'", a.Args)
		check("artifact '"+a.Name+"'", a.VerifyArgs)
	}
	for _, a := range p.Actions {
		scope := "action '" + a.Name + "'"
		check(scope, []Arg{a.Target})
		check(scope, a.Operands)
		if a.Probe != nil {
			check(scope, a.Probe.Args)
		}
	}

	return errors.Join(errs...)
}

// cloneAction deep copies a and substitutes the each-peer placeholder with
// peer when peer is not empty.
func cloneAction(a ConfigAction, peer string) ConfigAction {
	out := a
	out.DependsOn = append([]string(nil), a.DependsOn...)
	out.Target = substitutePeer(a.Target, peer)
	out.Operands = make([]Arg, 0, len(a.Operands))
	for _, op := range a.Operands {
		out.Operands = append(out.Operands, substitutePeer(op, peer))
	}
	if a.Probe != nil {
		probe := Probe{Method: a.Probe.Method}
		for _, arg := range a.Probe.Args {
			probe.Args = append(probe.Args, substitutePeer(arg, peer))
		}
		out.Probe = &probe
	}
	return out
}

func substitutePeer(a Arg, peer string) Arg {
	out := a
	if peer != "" && a.Peer == EachPeer {
		out.Peer = peer
	}
	if a.List != nil {
		out.List = make([]Arg, 0, len(a.List))
		for _, item := range a.List {
			out.List = append(out.List, substitutePeer(item, peer))
		}
	}
	if a.State != nil {
		state := *a.State
		state.Args = nil
		for _, item := range a.State.Args {
			state.Args = append(state.Args, substitutePeer(item, peer))
		}
		out.State = &state
	}
	if a.Amount != nil {
		amount := *a.Amount
		out.Amount = &amount
	}
	return out
}

func cloneArgs(args []Arg) []Arg {
	if args == nil {
		return nil
	}
	out := make([]Arg, 0, len(args))
	for _, a := range args {
		out = append(out, substitutePeer(a, ""))
	}
	return out
}
