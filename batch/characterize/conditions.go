package characterize

import (
	"fmt"
	"math"
	"slices"

	"github.com/myovent/simbatch/batch/document"
	"github.com/myovent/simbatch/batch/sweep"
)

var (
	slackVolumePath = document.MustParsePath("MyoVent.circulation.compartments.slack_volume[0]")
	mNPath          = sweep.DefaultKineticsRoot.Append(document.Key("thick_structure"), document.Key("m_n"))
)

const simulationKey = "simulation"

// condition is one simulation of one model: the edited model plus the
// activation and perturbation entries of its protocol.
type condition struct {
	model        *document.Document
	activation   []*document.Document
	perturbation []*document.Document
}

// conditions expands base into this characterization's conditions, in
// condition order.
func (c *Characterization) conditions(base *document.Document) ([]condition, error) {
	var conds []condition
	switch c.Type {
	case Freeform:
		for n := 1; n <= c.NoOfConditions; n++ {
			model, err := c.withMN(base.Clone())
			if err != nil {
				return nil, err
			}
			act, err := route(c.Activation, n)
			if err != nil {
				return nil, err
			}
			pert, err := route(c.Perturbation, n)
			if err != nil {
				return nil, err
			}
			conds = append(conds, condition{model: model, activation: act, perturbation: pert})
		}
	case Isovolumic:
		for _, factor := range c.SlackFactors {
			model := base.Clone()
			slack, err := model.Get(slackVolumePath)
			if err != nil {
				return nil, err
			}
			v, ok := slack.Float()
			if !ok {
				return nil, fmt.Errorf("%s is %s, not a number", slackVolumePath, slack.Kind())
			}
			if err := model.Set(slackVolumePath, document.NewFloat(v*factor)); err != nil {
				return nil, err
			}
			if model, err = c.withMN(model); err != nil {
				return nil, err
			}
			conds = append(conds, condition{model: model, perturbation: cloneAll(c.Perturbation)})
		}
	default:
		return nil, fmt.Errorf("unknown characterization type %q", c.Type)
	}
	return conds, nil
}

func (c *Characterization) withMN(model *document.Document) (*document.Document, error) {
	if c.MN == nil {
		return model, nil
	}
	if err := model.Set(mNPath, document.NewInt(int64(*c.MN))); err != nil {
		return nil, fmt.Errorf("setting m_n: %w", err)
	}
	return model, nil
}

// protocol builds the protocol document for cond. Isovolumic protocols have
// no activation key.
func (c *Characterization) protocol(cond condition) *document.Document {
	p := document.NewObject()
	p.SetField("time_step_s", document.NewFloat(c.TimeStepS))
	p.SetField("no_of_time_steps", document.NewInt(c.timeSteps()))
	doc := document.NewObject()
	doc.SetField("protocol", p)
	if c.Type == Freeform {
		doc.SetField("activation", document.NewArray(cond.activation...))
	}
	doc.SetField("perturbation", document.NewArray(cond.perturbation...))
	return doc
}

// timeSteps rounds half to even, so a duration landing exactly between two
// step counts picks the even one.
func (c *Characterization) timeSteps() int64 {
	return int64(math.RoundToEven(c.SimDurationS / c.TimeStepS))
}

// route returns copies of the entries whose simulation field selects
// condition n (1-based), with that field removed. Entries without a
// simulation field apply to every condition.
func route(entries []*document.Document, n int) ([]*document.Document, error) {
	var out []*document.Document
	for _, e := range entries {
		sims, err := simulations(e)
		if err != nil {
			return nil, err
		}
		if sims != nil && !slices.Contains(sims, n) {
			continue
		}
		cp := e.Clone()
		cp.DeleteField(simulationKey)
		out = append(out, cp)
	}
	return out, nil
}

// simulations reads an entry's simulation field: a single condition number
// or a list of them. It returns nil when the field is absent.
func simulations(e *document.Document) ([]int, error) {
	v, ok := e.Field(simulationKey)
	if !ok {
		return nil, nil
	}
	items := []*document.Document{v}
	if v.Kind() == document.KindArray {
		items = v.Items()
	}
	sims := make([]int, 0, len(items))
	for _, it := range items {
		f, ok := it.Float()
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("simulation must be an integer or a list of integers")
		}
		sims = append(sims, int(f))
	}
	return sims, nil
}

func cloneAll(docs []*document.Document) []*document.Document {
	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
