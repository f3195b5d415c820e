package services

import "secretsanta/internal/models"

// DerivePools computes the giver and receiver pools from the participant
// list and the giver->receiver mapping. Pool order follows participant order.
func DerivePools(participants []models.Participant, matches map[string]string) models.Pools {
	receivers := make(map[string]bool, len(matches))
	for _, r := range matches {
		receivers[r] = true
	}

	pools := models.Pools{
		AvailableGivers:    make([]models.Participant, 0, len(participants)),
		AvailableReceivers: make([]models.Participant, 0, len(participants)),
	}
	for _, p := range participants {
		if _, matched := matches[p.Name]; !matched {
			pools.AvailableGivers = append(pools.AvailableGivers, p)
		}
		if !receivers[p.Name] {
			pools.AvailableReceivers = append(pools.AvailableReceivers, p)
		}
	}
	return pools
}

// EligibleReceivers returns the receivers giver may draw: the receiver pool
// without the giver and without anyone already flagged as having received.
func EligibleReceivers(pools models.Pools, giver string) []models.Participant {
	var candidates []models.Participant
	for _, p := range pools.AvailableReceivers {
		if p.Name != giver && !p.HasReceivedMatch {
			candidates = append(candidates, p)
		}
	}
	return candidates
}

func containsName(list []models.Participant, name string) bool {
	for _, p := range list {
		if p.Name == name {
			return true
		}
	}
	return false
}
