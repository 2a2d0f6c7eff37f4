package collaborator

import (
	"context"
	"testing"

	"github.com/nudgeworks/journey/model"
	"github.com/nudgeworks/journey/persistence/memory"
	"github.com/stretchr/testify/require"
)

func TestExprSegment(t *testing.T) {
	subjects := memory.NewInMemSubjectStore()
	require.NoError(t, subjects.Save(&model.Subject{
		Id:         "s1",
		Attributes: map[string]any{"plan": "pro", "seats": 12},
		Tags:       []string{"vip"},
		Lists:      []string{"newsletter"},
	}))
	segment := NewExprSegment(subjects)
	ctx := context.Background()

	for scenario, tc := range map[string]struct {
		predicate string
		want      bool
	}{
		"attribute equality": {`attributes.plan == "pro"`, true},
		"numeric comparison": {`attributes.seats > 10`, true},
		"tag membership":     {`"vip" in tags`, true},
		"list membership":    {`"newsletter" in lists`, true},
		"missing attribute":  {`attributes.region == "eu"`, false},
		"combined predicate": {`attributes.plan == "pro" and "vip" in tags`, true},
		"negative match":     {`attributes.plan == "free"`, false},
	} {
		t.Run(scenario, func(t *testing.T) {
			got, err := segment.Matches(ctx, "s1", tc.predicate)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("non boolean predicate errors", func(t *testing.T) {
		_, err := segment.Matches(ctx, "s1", `attributes.plan`)
		require.Error(t, err)
	})

	t.Run("invalid predicate errors", func(t *testing.T) {
		_, err := segment.Matches(ctx, "s1", `attributes.plan ==`)
		require.Error(t, err)
	})

	t.Run("unknown subject errors", func(t *testing.T) {
		_, err := segment.Matches(ctx, "ghost", `true`)
		require.Error(t, err)
	})
}
