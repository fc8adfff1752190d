package analytics

import "sort"

// BuildTeacherRoster keeps the non-learner accounts sorted by last name, first name and id.
func BuildTeacherRoster(accounts []Account) []Account {
	roster := make([]Account, 0, len(accounts))
	for _, account := range accounts {
		if !account.IsLearner {
			roster = append(roster, account)
		}
	}
	sort.SliceStable(roster, func(i, j int) bool {
		a, b := roster[i], roster[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return roster
}
