package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stagelink/rentops/pkg/errors"
)

func TestCapacityError_MatchesSentinel(t *testing.T) {
	err := &CapacityError{Result: &PeriodResult{}}
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientCapacity))
}

func TestCapacityError_MessageNamesShortItems(t *testing.T) {
	err := &CapacityError{Result: &PeriodResult{
		StartDate: time.Now(),
		EndDate:   time.Now().AddDate(0, 0, 3),
		Items: []ItemAvailability{
			{ItemID: "item-1", Name: "Painel de LED", Requested: 10, Available: 4, Satisfiable: false},
			{ItemID: "item-2", Name: "Mesa", Requested: 2, Available: 8, Satisfiable: true},
			{ItemID: "item-3", Name: "Lycra", Requested: 30, Available: 12.5, Satisfiable: false},
		},
	}}

	msg := err.Error()
	assert.Contains(t, msg, "Painel de LED")
	assert.Contains(t, msg, "Lycra")
	assert.NotContains(t, msg, "Mesa")

	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Len(t, capErr.Result.Items, 3)
}

func TestCapacityError_EmptyBreakdown(t *testing.T) {
	err := &CapacityError{Result: &PeriodResult{}}
	assert.Equal(t, "insufficient capacity for requested period", err.Error())
}
