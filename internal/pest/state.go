package pest

// policy records a currently active conserve/cull policy for one species.
type policy struct {
	id      uint32
	species string
	isCull  bool // false = conserve
}

type actionKind int

const (
	actionDelete actionKind = iota
	actionAdd
)

type policyAction struct {
	kind    actionKind
	id      uint32 // valid for actionDelete
	species string
	isCull  bool // valid for actionAdd
}

// siteState holds one site's population targets (fetched once from the
// authority) and the policies currently in force there.
type siteState struct {
	targets  map[string]populationTarget
	policies map[string]policy
}

func newSiteState() *siteState {
	return &siteState{
		targets:  make(map[string]populationTarget),
		policies: make(map[string]policy),
	}
}

// getActions reconciles a site visit's observations against every known
// target species, defaulting any target species absent from the
// observations to a count of 0, and returns the policy changes needed.
func (s *siteState) getActions(observations []populationObs) []policyAction {
	counts := make(map[string]uint32, len(s.targets))
	for species := range s.targets {
		counts[species] = 0
	}
	for _, o := range observations {
		if _, known := counts[o.species]; known {
			counts[o.species] = o.count
		}
	}

	var actions []policyAction
	for species, count := range counts {
		actions = append(actions, s.getAction(species, count)...)
	}
	return actions
}

func (s *siteState) getAction(species string, count uint32) []policyAction {
	target, ok := s.targets[species]
	if !ok {
		return nil
	}

	last, hasPolicy := s.policies[species]
	switch {
	case count < target.min && hasPolicy && !last.isCull:
		return nil
	case count > target.max && hasPolicy && last.isCull:
		return nil
	case count >= target.min && count <= target.max && !hasPolicy:
		return nil
	}

	var actions []policyAction
	if hasPolicy {
		actions = append(actions, policyAction{kind: actionDelete, id: last.id, species: species})
	}
	if count < target.min || count > target.max {
		actions = append(actions, policyAction{kind: actionAdd, species: species, isCull: count > target.max})
	}
	return actions
}

func policyTypeByte(isCull bool) byte {
	if isCull {
		return policyCull
	}
	return policyConserve
}
