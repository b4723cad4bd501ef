package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBaseline(t *testing.T) {
	tests := []struct {
		name string
		ev   BaselineEvidence
		want Result
	}{
		{"all consents", BaselineEvidence{true, true, true, true, true}, ResultPass},
		{"no consents", BaselineEvidence{}, ResultInterventionRequired},
		{"missing data sharing", BaselineEvidence{true, true, true, false, true}, ResultInterventionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateBaseline(tt.ev)
			assert.Equal(t, tt.want, got.Result)
			assert.Equal(t, tt.ev, got.Evidence)
		})
	}
}

func TestEvaluateSellableSkill(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name     string
		assigned int
		verified int
		tech     float64
		want     Result
	}{
		{"exact thresholds", 10, 5, 30, ResultPass},
		{"low completion", 10, 4, 90, ResultInterventionRequired},
		{"low tech score", 10, 10, 29.9, ResultInterventionRequired},
		{"nothing assigned", 0, 0, 100, ResultInterventionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateSellableSkill(SellableSkillEvidence{
				AssignedMissions: tt.assigned,
				VerifiedMissions: tt.verified,
				TechnicalScore:   tt.tech,
			}, th)
			assert.Equal(t, tt.want, got.Result)

			ev, ok := got.Evidence.(SellableSkillEvidence)
			require.True(t, ok)
			assert.Equal(t, th.MinCompletionRate, ev.MinCompletionRate)
		})
	}
}

func TestEvaluateMarketContact(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, ResultPass, EvaluateMarketContact(MarketContactEvidence{VerifiedCommercialMissions: 3}, th).Result)
	assert.Equal(t, ResultPass, EvaluateMarketContact(MarketContactEvidence{OutreachLogs: 5}, th).Result)
	assert.Equal(t, ResultInterventionRequired, EvaluateMarketContact(MarketContactEvidence{VerifiedCommercialMissions: 2, OutreachLogs: 4}, th).Result)
}

func TestEvaluateIncome(t *testing.T) {
	assert.Equal(t, ResultPass, EvaluateIncome(IncomeEvidence{VerifiedIncomeRecords: 1, PositiveIncomeRecords: 1, VerifiedIncomeTotal: 150}).Result)
	assert.Equal(t, ResultFail, EvaluateIncome(IncomeEvidence{}).Result)
	assert.Equal(t, ResultFail, EvaluateIncome(IncomeEvidence{VerifiedIncomeRecords: 2, PositiveIncomeRecords: 2, VerifiedIncomeTotal: 300, UnresolvedFails: 1}).Result)

	// A refund larger than the earning leaves a negative total; the earning still counts.
	assert.Equal(t, ResultPass, EvaluateIncome(IncomeEvidence{VerifiedIncomeRecords: 2, PositiveIncomeRecords: 1, VerifiedIncomeTotal: -50}).Result)
	assert.Equal(t, ResultFail, EvaluateIncome(IncomeEvidence{VerifiedIncomeRecords: 1, VerifiedIncomeTotal: -300}).Result)
}

func TestSchedule(t *testing.T) {
	s := DefaultSchedule()

	g, ok := s.GateForDay(30)
	require.True(t, ok)
	assert.Equal(t, TypeSellableSkill, g)

	_, ok = s.GateForDay(31)
	assert.False(t, ok)

	entries := s.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, 1, entries[0].Day)
	assert.Equal(t, TypeIncome, entries[3].Gate)

	day, ok := s.DayOf(TypeMarketContact)
	require.True(t, ok)
	assert.Equal(t, 60, day)
}

func TestNewScheduleRejectsInvalid(t *testing.T) {
	_, err := NewSchedule(map[int]Type{0: TypeBaseline})
	assert.Error(t, err)

	_, err = NewSchedule(map[int]Type{1: TypeBaseline, 2: TypeBaseline})
	assert.Error(t, err)

	_, err = NewSchedule(map[int]Type{5: "BOGUS"})
	assert.Error(t, err)
}

func TestResultIsBlocking(t *testing.T) {
	assert.True(t, ResultFail.IsBlocking())
	assert.True(t, ResultInterventionRequired.IsBlocking())
	assert.False(t, ResultPass.IsBlocking())
	assert.False(t, ResultPending.IsBlocking())
}
