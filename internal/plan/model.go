package plan

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"gopkg.in/yaml.v3"
)

// EachPeer is the peer placeholder that for-each-peer expansion replaces with
// the concrete peer network name.
const EachPeer = "*"

type (
	ActionKind string

	// Arg is one node of an argument template. Exactly one field is set.
	Arg struct {
		Value    any       `yaml:"value,omitempty"`
		Artifact string    `yaml:"artifact,omitempty"`
		Profile  string    `yaml:"profile,omitempty"`
		Peer     string    `yaml:"peer,omitempty"`
		State    *StateRef `yaml:"state,omitempty"`
		Amount   *Amount   `yaml:"amount,omitempty"`
		List     []Arg     `yaml:"list,omitempty"`
	}

	// StateRef reads a value from the on-chain state of a confirmed artifact.
	StateRef struct {
		Artifact string `yaml:"artifact" validate:"required"`
		Method   string `yaml:"method" validate:"required"`
		Args     []Arg  `yaml:"args,omitempty"`
	}

	// Amount is a decimal token amount scaled by Decimals.
	Amount struct {
		Units    string `yaml:"units" validate:"required"`
		Decimals uint8  `yaml:"decimals"`
	}

	ArtifactSpec struct {
		Name      string   `yaml:"name" validate:"required"`
		Contract  string   `yaml:"contract" validate:"required"`
		Args      []Arg    `yaml:"args,omitempty"`
		DependsOn []string `yaml:"depends-on,omitempty"`
		// Derived artifacts are created by their parent's constructor; the
		// address is read from the parent instead of deploying.
		Derived *StateRef `yaml:"derived,omitempty"`
		// VerifyArgs overrides Args for verification of derived artifacts.
		VerifyArgs []Arg `yaml:"verify-args,omitempty"`
	}

	Probe struct {
		Method string `yaml:"method" validate:"required"`
		Args   []Arg  `yaml:"args,omitempty"`
	}

	ConfigAction struct {
		Name        string     `yaml:"name" validate:"required"`
		Kind        ActionKind `yaml:"kind" validate:"oneof=ownership-transfer whitelist-peer fund-transfer"`
		Target      Arg        `yaml:"target"`
		Contract    string     `yaml:"contract,omitempty"`
		Method      string     `yaml:"method,omitempty"`
		Operands    []Arg      `yaml:"operands,omitempty"`
		DependsOn   []string   `yaml:"depends-on,omitempty"`
		Probe       *Probe     `yaml:"probe,omitempty"`
		ForEachPeer bool       `yaml:"for-each-peer,omitempty"`
	}

	// Template is the network independent form of a plan as written in YAML.
	Template struct {
		Name      string         `yaml:"name"`
		Artifacts []ArtifactSpec `yaml:"artifacts"`
		Actions   []ConfigAction `yaml:"actions"`
	}

	// DeploymentPlan is built once per run and is read-only afterwards.
	DeploymentPlan struct {
		Network   string         `yaml:"network"`
		Artifacts []ArtifactSpec `yaml:"artifacts"`
		Actions   []ConfigAction `yaml:"actions"`
	}
)

const (
	KindOwnershipTransfer ActionKind = "ownership-transfer"
	KindWhitelistPeer     ActionKind = "whitelist-peer"
	KindFundTransfer      ActionKind = "fund-transfer"
)

// Literal wraps v as a literal argument.
func Literal(v any) Arg { return Arg{Value: v} }

func ArtifactRef(name string) Arg { return Arg{Artifact: name} }

func ProfileRef(key string) Arg { return Arg{Profile: key} }

func PeerRef(name string) Arg { return Arg{Peer: name} }

func StateArg(artifact, method string, args ...Arg) Arg {
	return Arg{State: &StateRef{Artifact: artifact, Method: method, Args: args}}
}

func ListArg(items ...Arg) Arg { return Arg{List: items} }

func AmountArg(units string, decimals uint8) Arg {
	return Arg{Amount: &Amount{Units: units, Decimals: decimals}}
}

// UnmarshalYAML accepts a bare scalar as a literal, a sequence as a list and a
// mapping as a placeholder.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		// keep hex strings and big integers textual, yaml would turn 0x.. into ints
		if node.Tag == "!!int" || node.Tag == "!!float" {
			v = node.Value
		}
		*a = Arg{Value: v}
		return nil
	case yaml.SequenceNode:
		items := make([]Arg, 0, len(node.Content))
		if err := node.Decode(&items); err != nil {
			return err
		}
		*a = Arg{List: items}
		return nil
	case yaml.MappingNode:
		type plain Arg
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*a = Arg(p)
		if a.List == nil && hasKey(node, "list") {
			a.List = []Arg{}
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported argument node", node.Line)
	}
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

func (a Arg) kinds() int {
	n := 0
	for _, set := range []bool{
		a.Value != nil,
		a.Artifact != "",
		a.Profile != "",
		a.Peer != "",
		a.State != nil,
		a.Amount != nil,
		a.List != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (a Arg) String() string {
	switch {
	case a.Artifact != "":
		return "artifact:" + a.Artifact
	case a.Profile != "":
		return "profile:" + a.Profile
	case a.Peer != "":
		return "peer:" + a.Peer
	case a.State != nil:
		return fmt.Sprintf("state:%s.%s()", a.State.Artifact, a.State.Method)
	case a.Amount != nil:
		return fmt.Sprintf("amount:%s@%d", a.Amount.Units, a.Amount.Decimals)
	case a.List != nil:
		parts := make([]string, 0, len(a.List))
		for _, item := range a.List {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", a.Value)
	}
}

// Walk calls fn for a and every nested argument.
func (a Arg) Walk(fn func(Arg)) {
	fn(a)
	for _, item := range a.List {
		item.Walk(fn)
	}
	if a.State != nil {
		for _, item := range a.State.Args {
			item.Walk(fn)
		}
	}
}

// Int scales Units by Decimals, e.g. "2" with 18 decimals is 2e18.
func (a Amount) Int() (*big.Int, error) {
	units := strings.TrimSpace(a.Units)
	if units == "" || strings.HasPrefix(units, "-") {
		return nil, fmt.Errorf("invalid amount '%s'", a.Units)
	}

	whole, frac, _ := strings.Cut(units, ".")
	if len(frac) > int(a.Decimals) {
		return nil, fmt.Errorf("amount '%s' has more than %d decimals", a.Units, a.Decimals)
	}
	frac += strings.Repeat("0", int(a.Decimals)-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount '%s'", a.Units)
	}
	return value, nil
}

func (p *DeploymentPlan) Artifact(name string) (ArtifactSpec, bool) {
	for _, a := range p.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactSpec{}, false
}

func (p *DeploymentPlan) Action(name string) (ConfigAction, bool) {
	for _, a := range p.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ConfigAction{}, false
}

var errEmptyArg = errors.New("argument must set exactly one of value, artifact, profile, peer, state, amount or list")
