package model

// Plan is the sum type described in §9 Design Notes: either no plan is
// active, or exactly one active plan with a goal and 2-5 ordered steps.
// Replacing a plan (a replan) swaps the whole value atomically; callers
// never mutate Steps in place.
type Plan struct {
	// Goal is the one-sentence objective declared by SetGoals.
	Goal string
	// Steps is the ordered todo list, 2-5 entries per the SetGoals contract.
	Steps []string
}

// Active reports whether a plan has been declared.
func (p *Plan) Active() bool {
	return p != nil && p.Goal != ""
}

// Clone returns an independent copy so callers can hand it to concurrent
// readers without risking later mutation of the shared Steps slice.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{Goal: p.Goal}
	if p.Steps != nil {
		out.Steps = append([]string(nil), p.Steps...)
	}
	return out
}

// Equal reports whether two plans declare the same goal and steps, used to
// decide whether a re-declared SetGoals call is actually a replan (§8:
// "Re-registering a plan with the same {goal, steps} yields replanCount
// unchanged unless the plan differs").
func (p *Plan) Equal(other *Plan) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Goal != other.Goal || len(p.Steps) != len(other.Steps) {
		return false
	}
	for i := range p.Steps {
		if p.Steps[i] != other.Steps[i] {
			return false
		}
	}
	return true
}
