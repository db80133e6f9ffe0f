package plan

import (
	"errors"
	"fmt"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func configError(network string, err error) error {
	return failure.Configuration(fmt.Sprintf("plan for network '%s'", network), err)
}

// Validate checks names, dependency references and placeholder targets. It
// does not order the plan, see Order for cycle detection.
func (p *DeploymentPlan) Validate() error {
	var errs []error

	artifacts := make(map[string]ArtifactSpec, len(p.Artifacts))
	for _, a := range p.Artifacts {
		if err := validate.Struct(a); err != nil {
			errs = append(errs, fmt.Errorf("artifact '%s': %w", a.Name, err))
		}
		if _, dup := artifacts[a.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate step name '%s'", a.Name))
		}
		artifacts[a.Name] = a
	}

	actions := make(map[string]struct{}, len(p.Actions))
	for _, a := range p.Actions {
		if err := validate.Struct(a); err != nil {
			errs = append(errs, fmt.Errorf("action '%s': %w", a.Name, err))
		}
		_, dupAction := actions[a.Name]
		_, dupArtifact := artifacts[a.Name]
		if dupAction || dupArtifact {
			errs = append(errs, fmt.Errorf("duplicate step name '%s'", a.Name))
		}
		actions[a.Name] = struct{}{}
	}

	for _, a := range p.Artifacts {
		for _, dep := range a.DependsOn {
			if _, ok := artifacts[dep]; !ok {
				errs = append(errs, fmt.Errorf("artifact '%s' depends on unknown artifact '%s'", a.Name, dep))
			}
		}
		if a.Derived != nil {
			if err := validate.Struct(a.Derived); err != nil {
				errs = append(errs, fmt.Errorf("artifact '%s' derived: %w", a.Name, err))
			} else if !contains(a.DependsOn, a.Derived.Artifact) {
				errs = append(errs, fmt.Errorf("derived artifact '%s' must depend on '%s'", a.Name, a.Derived.Artifact))
			}
		}
		errs = append(errs, checkArgs("artifact '"+a.Name+"'", a.Args, artifacts)...)
		errs = append(errs, checkArgs("artifact '"+a.Name+"' verify-args", a.VerifyArgs, artifacts)...)
	}

	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			_, isArtifact := artifacts[dep]
			_, isAction := actions[dep]
			if !isArtifact && !isAction {
				errs = append(errs, fmt.Errorf("action '%s' depends on unknown step '%s'", a.Name, dep))
			}
		}

		scope := "action '" + a.Name + "'"
		switch {
		case a.Target.Artifact != "" || a.Target.Profile != "":
			errs = append(errs, checkArgs(scope+" target", []Arg{a.Target}, artifacts)...)
		case a.Target.Value != nil:
		default:
			errs = append(errs, fmt.Errorf("%s: target must be an artifact, a profile address or a literal address", scope))
		}

		errs = append(errs, checkArgs(scope+" operands", a.Operands, artifacts)...)
		if a.Probe != nil {
			if err := validate.Struct(a.Probe); err != nil {
				errs = append(errs, fmt.Errorf("%s probe: %w", scope, err))
			}
			errs = append(errs, checkArgs(scope+" probe", a.Probe.Args, artifacts)...)
		}

		if need := minOperands(a.Kind); len(a.Operands) < need {
			errs = append(errs, fmt.Errorf("%s: %s needs at least %d operand(s)", scope, a.Kind, need))
		}
		if a.ForEachPeer {
			errs = append(errs, fmt.Errorf("%s: for-each-peer must be expanded before execution", scope))
		}
	}

	if len(errs) > 0 {
		return configError(p.Network, errors.Join(errs...))
	}
	return nil
}

func checkArgs(scope string, args []Arg, artifacts map[string]ArtifactSpec) []error {
	var errs []error
	for _, arg := range args {
		arg.Walk(func(a Arg) {
			if a.kinds() != 1 {
				errs = append(errs, fmt.Errorf("%s: %w, got %s", scope, errEmptyArg, a))
				return
			}
			if a.Artifact != "" {
				if _, ok := artifacts[a.Artifact]; !ok {
					errs = append(errs, fmt.Errorf("%s references unknown artifact '%s'", scope, a.Artifact))
				}
			}
			if a.State != nil {
				if err := validate.Struct(a.State); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", scope, err))
				} else if _, ok := artifacts[a.State.Artifact]; !ok {
					errs = append(errs, fmt.Errorf("%s reads state of unknown artifact '%s'", scope, a.State.Artifact))
				}
			}
			if a.Amount != nil {
				if _, err := a.Amount.Int(); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", scope, err))
				}
			}
			if a.Peer == EachPeer {
				errs = append(errs, fmt.Errorf("%s: peer placeholder '%s' is only valid with for-each-peer", scope, EachPeer))
			}
		})
	}
	return errs
}

func minOperands(kind ActionKind) int {
	switch kind {
	case KindOwnershipTransfer, KindWhitelistPeer:
		return 1
	case KindFundTransfer:
		return 2
	default:
		return 0
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
