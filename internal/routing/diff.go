package routing

// Diff computes the rules present in desired but not in current (added) and
// the rules present in current but not in desired (removed). Order and
// Source are ignored. Either table may be nil.
func Diff(current, desired *Table) (added, removed []Rule) {
	currentRules := rulesOf(current)
	desiredRules := rulesOf(desired)

	currentKeys := make(map[key]struct{}, len(currentRules))
	for i := range currentRules {
		currentKeys[currentRules[i].key()] = struct{}{}
	}

	desiredKeys := make(map[key]struct{}, len(desiredRules))
	for i := range desiredRules {
		desiredKeys[desiredRules[i].key()] = struct{}{}
	}

	for i := range desiredRules {
		if _, found := currentKeys[desiredRules[i].key()]; !found {
			added = append(added, desiredRules[i])
		}
	}

	for i := range currentRules {
		if _, found := desiredKeys[currentRules[i].key()]; !found {
			removed = append(removed, currentRules[i])
		}
	}

	return added, removed
}

func rulesOf(t *Table) []Rule {
	if t == nil {
		return nil
	}

	return t.rules
}
