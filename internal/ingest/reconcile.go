package ingest

// Action is the reconciliation decision for one conversation.
type Action string

const (
	ActionNew    Action = "NEW"
	ActionUpdate Action = "NEEDS_UPDATE"
	ActionSkip   Action = "SKIP"
)

// Decision pairs a conversation identifier with its action.
type Decision struct {
	ExternalID string
	Action     Action
}

// Plan is the ordered set of decisions for one run.
type Plan struct {
	Decisions []Decision
	New       int
	Update    int
	Skip      int
}

// Classify decides what to do with each listed identifier. local maps stored
// identifiers to whether their summary is populated. A full run refreshes
// every stored record; otherwise only records still missing a summary are
// refreshed.
func Classify(ids []string, local map[string]bool, full bool) Plan {
	plan := Plan{Decisions: make([]Decision, 0, len(ids))}
	for _, id := range ids {
		action := classifyOne(id, local, full)
		switch action {
		case ActionNew:
			plan.New++
		case ActionUpdate:
			plan.Update++
		default:
			plan.Skip++
		}
		plan.Decisions = append(plan.Decisions, Decision{ExternalID: id, Action: action})
	}
	return plan
}

func classifyOne(id string, local map[string]bool, full bool) Action {
	hasSummary, exists := local[id]
	switch {
	case !exists:
		return ActionNew
	case full || !hasSummary:
		return ActionUpdate
	default:
		return ActionSkip
	}
}

// Pending returns the decisions that require a detail fetch.
func (p Plan) Pending() []Decision {
	out := make([]Decision, 0, p.New+p.Update)
	for _, d := range p.Decisions {
		if d.Action != ActionSkip {
			out = append(out, d)
		}
	}
	return out
}
