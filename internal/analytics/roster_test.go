package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTeacherRoster(t *testing.T) {
	accounts := []Account{
		{ID: 5, LastName: "Petrov", FirstName: "Ivan"},
		{ID: 1, LastName: "Ivanova", FirstName: "Anna", IsLearner: true},
		{ID: 4, LastName: "Abramov", FirstName: "Oleg"},
		{ID: 3, LastName: "Petrov", FirstName: "Ivan"},
		{ID: 2, LastName: "Petrov", FirstName: "Boris"},
	}

	roster := BuildTeacherRoster(accounts)

	ids := make([]uint, 0, len(roster))
	for _, account := range roster {
		require.False(t, account.IsLearner)
		ids = append(ids, account.ID)
	}
	require.Equal(t, []uint{4, 2, 3, 5}, ids)
}

func TestBuildTeacherRosterEmpty(t *testing.T) {
	require.Empty(t, BuildTeacherRoster(nil))
	require.Empty(t, BuildTeacherRoster([]Account{{ID: 1, IsLearner: true}}))
}
