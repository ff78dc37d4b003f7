package pest

import "testing"

func newTestSiteState() *siteState {
	s := newSiteState()
	s.targets["rat"] = populationTarget{species: "rat", min: 0, max: 10}
	s.targets["dog"] = populationTarget{species: "dog", min: 1, max: 3}
	return s
}

func TestGetActionNoPolicyWithinRangeIsNoop(t *testing.T) {
	s := newTestSiteState()
	actions := s.getAction("dog", 2)
	if len(actions) != 0 {
		t.Fatalf("expected no action, got %+v", actions)
	}
}

func TestGetActionBelowMinAddsConservePolicy(t *testing.T) {
	s := newTestSiteState()
	actions := s.getAction("dog", 0)
	if len(actions) != 1 || actions[0].kind != actionAdd || actions[0].isCull {
		t.Fatalf("expected a single conserve-add action, got %+v", actions)
	}
}

func TestGetActionAboveMaxAddsCullPolicy(t *testing.T) {
	s := newTestSiteState()
	actions := s.getAction("dog", 5)
	if len(actions) != 1 || actions[0].kind != actionAdd || !actions[0].isCull {
		t.Fatalf("expected a single cull-add action, got %+v", actions)
	}
}

func TestGetActionExistingConserveBelowMinIsNoop(t *testing.T) {
	s := newTestSiteState()
	s.policies["dog"] = policy{id: 42, species: "dog", isCull: false}
	actions := s.getAction("dog", 0)
	if len(actions) != 0 {
		t.Fatalf("expected no action when conserve policy already covers below-min, got %+v", actions)
	}
}

func TestGetActionExistingCullAboveMaxIsNoop(t *testing.T) {
	s := newTestSiteState()
	s.policies["dog"] = policy{id: 42, species: "dog", isCull: true}
	actions := s.getAction("dog", 5)
	if len(actions) != 0 {
		t.Fatalf("expected no action when cull policy already covers above-max, got %+v", actions)
	}
}

func TestGetActionSwitchesPolicyKind(t *testing.T) {
	s := newTestSiteState()
	s.policies["dog"] = policy{id: 42, species: "dog", isCull: true}
	actions := s.getAction("dog", 0)
	if len(actions) != 2 {
		t.Fatalf("expected delete-then-add, got %+v", actions)
	}
	if actions[0].kind != actionDelete || actions[0].id != 42 {
		t.Fatalf("expected delete of old policy first, got %+v", actions[0])
	}
	if actions[1].kind != actionAdd || actions[1].isCull {
		t.Fatalf("expected conserve add second, got %+v", actions[1])
	}
}

func TestGetActionBackInRangeDeletesPolicy(t *testing.T) {
	s := newTestSiteState()
	s.policies["dog"] = policy{id: 42, species: "dog", isCull: false}
	actions := s.getAction("dog", 2)
	if len(actions) != 1 || actions[0].kind != actionDelete || actions[0].id != 42 {
		t.Fatalf("expected a single delete action, got %+v", actions)
	}
}

func TestGetActionsDefaultsAbsentSpeciesToZero(t *testing.T) {
	s := newTestSiteState()
	actions := s.getActions([]populationObs{{species: "rat", count: 5}})

	var dogActions []policyAction
	for _, a := range actions {
		if a.species == "dog" {
			dogActions = append(dogActions, a)
		}
	}
	if len(dogActions) != 1 || dogActions[0].kind != actionAdd || dogActions[0].isCull {
		t.Fatalf("expected dog (absent, defaulted to 0) to get a conserve-add action, got %+v", dogActions)
	}
}

func TestGetActionsIgnoresUnknownSpecies(t *testing.T) {
	s := newTestSiteState()
	actions := s.getActions([]populationObs{
		{species: "rat", count: 5},
		{species: "dog", count: 2},
		{species: "unregistered", count: 100},
	})
	for _, a := range actions {
		if a.species == "unregistered" {
			t.Fatalf("did not expect action for species outside of targets, got %+v", actions)
		}
	}
}
