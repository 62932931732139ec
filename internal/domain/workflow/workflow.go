// Package workflow is the pure label-driven state machine: it maps the live
// label set of a tracked issue plus a classified inbound event to the next
// action. The label set on the tracker is the durable state; nothing here
// touches the network or mutates anything.
package workflow

import "strings"

type EventKind string

const (
	LabelAdded   EventKind = "label_added"
	LabelRemoved EventKind = "label_removed"
	Unrecognized EventKind = "unrecognized"
)

// Event is one classified inbound delivery. Immutable; discarded after the
// dispatch decision is made.
type Event struct {
	DeliveryID  string
	Kind        EventKind
	Label       string
	IssueNumber int
	PayloadSHA  string
}

// Labels names the stage labels configured on the tracker.
type Labels struct {
	Ready    string
	Proposal string
	Approved string
	Working  string
	Done     string
	Rejected string
}

type State string

const (
	StateIdle             State = "idle"
	StateReadyForAnalysis State = "ready_for_analysis"
	StateProposalPending  State = "proposal_pending"
	StateApproved         State = "approved"
	StateImplementing     State = "implementing"
	StateDone             State = "done"
	StateRejected         State = "rejected"
)

type Action string

const (
	ActionNone                Action = "none"
	ActionStartAnalysis       Action = "start_analysis"
	ActionStartImplementation Action = "start_implementation"
)

// StateOf derives the workflow state from a live label set. Precedence runs
// terminal states first, then the in-progress marker, then approval depth.
func (l Labels) StateOf(labels []string) State {
	set := toSet(labels)

	switch {
	case set[l.Rejected]:
		return StateRejected
	case set[l.Done]:
		return StateDone
	case set[l.Working]:
		return StateImplementing
	case set[l.Approved]:
		return StateApproved
	case set[l.Proposal]:
		return StateProposalPending
	case set[l.Ready]:
		return StateReadyForAnalysis
	default:
		return StateIdle
	}
}

// Decide maps (live label set, event) to the next action. Label removals
// never trigger work, terminal labels block everything, and when both
// trigger labels are present approved wins over ready so analysis is not
// restarted under an approval.
func (l Labels) Decide(current []string, ev Event) Action {
	if ev.Kind != LabelAdded {
		return ActionNone
	}
	if ev.Label != l.Ready && ev.Label != l.Approved {
		return ActionNone
	}

	set := toSet(current)
	if set[l.Rejected] || set[l.Done] {
		return ActionNone
	}

	if set[l.Approved] && !set[l.Working] {
		return ActionStartImplementation
	}
	if ev.Label == l.Ready && set[l.Ready] &&
		!set[l.Proposal] && !set[l.Approved] && !set[l.Working] {
		return ActionStartAnalysis
	}
	return ActionNone
}

// Allows re-checks an already-selected action against labels fetched live at
// task start. A false result means the trigger label was removed in the
// meantime and the task must abort without touching the tracker.
func (l Labels) Allows(current []string, action Action) bool {
	set := toSet(current)
	if set[l.Rejected] || set[l.Done] {
		return false
	}

	switch action {
	case ActionStartAnalysis:
		return set[l.Ready] && !set[l.Proposal] && !set[l.Approved] && !set[l.Working]
	case ActionStartImplementation:
		return set[l.Approved] && !set[l.Working]
	default:
		return false
	}
}

// IsTrigger reports whether a label name participates in dispatch decisions.
func (l Labels) IsTrigger(label string) bool {
	return label == l.Ready || label == l.Approved
}

func toSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			continue
		}
		set[trimmed] = true
	}
	return set
}
