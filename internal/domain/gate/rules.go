package gate

// Thresholds parameterizes the gate rules.
type Thresholds struct {
	MinCompletionRate     float64
	MinTechnicalScore     float64
	MinCommercialMissions int
	MinOutreachLogs       int
}

// DefaultThresholds returns the standard program thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCompletionRate:     0.5,
		MinTechnicalScore:     30,
		MinCommercialMissions: 3,
		MinOutreachLogs:       5,
	}
}

// Outcome is a computed result together with the evidence that produced it.
type Outcome struct {
	Result   Result
	Evidence any
}

// ══════════════════════════════════════════════════════════════════════════════
// EVIDENCE
// Every input a rule reads is captured so the decision can be re-derived.
// ══════════════════════════════════════════════════════════════════════════════

// BaselineEvidence backs the day-1 gate.
type BaselineEvidence struct {
	DailyAction       bool `json:"daily_action"`
	WeeklyCheckin     bool `json:"weekly_checkin"`
	FailureAcceptance bool `json:"failure_acceptance"`
	DataSharing       bool `json:"data_sharing"`
	ConsentsOnFile    bool `json:"consents_on_file"`
}

// SellableSkillEvidence backs the day-30 gate.
type SellableSkillEvidence struct {
	AssignedMissions  int     `json:"assigned_missions"`
	VerifiedMissions  int     `json:"verified_missions"`
	CompletionRate    float64 `json:"completion_rate"`
	TechnicalScore    float64 `json:"technical_score"`
	MinCompletionRate float64 `json:"min_completion_rate"`
	MinTechnicalScore float64 `json:"min_technical_score"`
}

// MarketContactEvidence backs the day-60 gate.
type MarketContactEvidence struct {
	VerifiedCommercialMissions int `json:"verified_commercial_missions"`
	OutreachLogs               int `json:"outreach_logs"`
	MinCommercialMissions      int `json:"min_commercial_missions"`
	MinOutreachLogs            int `json:"min_outreach_logs"`
}

// IncomeEvidence backs the day-90 gate.
type IncomeEvidence struct {
	VerifiedIncomeRecords int     `json:"verified_income_records"`
	PositiveIncomeRecords int     `json:"positive_income_records"`
	VerifiedIncomeTotal   float64 `json:"verified_income_total"`
	UnresolvedFails       int     `json:"unresolved_fails"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateBaseline passes only when all four consents are given.
func EvaluateBaseline(ev BaselineEvidence) Outcome {
	if ev.DailyAction && ev.WeeklyCheckin && ev.FailureAcceptance && ev.DataSharing {
		return Outcome{Result: ResultPass, Evidence: ev}
	}
	return Outcome{Result: ResultInterventionRequired, Evidence: ev}
}

// EvaluateSellableSkill checks mission completion and technical score.
// CompletionRate is derived here; zero assigned missions means a zero rate.
func EvaluateSellableSkill(ev SellableSkillEvidence, th Thresholds) Outcome {
	ev.CompletionRate = 0
	if ev.AssignedMissions > 0 {
		ev.CompletionRate = float64(ev.VerifiedMissions) / float64(ev.AssignedMissions)
	}
	ev.MinCompletionRate = th.MinCompletionRate
	ev.MinTechnicalScore = th.MinTechnicalScore

	if ev.CompletionRate >= th.MinCompletionRate && ev.TechnicalScore >= th.MinTechnicalScore {
		return Outcome{Result: ResultPass, Evidence: ev}
	}
	return Outcome{Result: ResultInterventionRequired, Evidence: ev}
}

// EvaluateMarketContact passes on enough commercial missions or enough outreach.
func EvaluateMarketContact(ev MarketContactEvidence, th Thresholds) Outcome {
	ev.MinCommercialMissions = th.MinCommercialMissions
	ev.MinOutreachLogs = th.MinOutreachLogs

	if ev.VerifiedCommercialMissions >= th.MinCommercialMissions || ev.OutreachLogs >= th.MinOutreachLogs {
		return Outcome{Result: ResultPass, Evidence: ev}
	}
	return Outcome{Result: ResultInterventionRequired, Evidence: ev}
}

// EvaluateIncome needs at least one verified record with a positive amount
// and no unresolved FAIL. The total is evidence only; a later refund does not
// undo an earning. Failure here is FAIL, which leads to exit.
func EvaluateIncome(ev IncomeEvidence) Outcome {
	if ev.PositiveIncomeRecords > 0 && ev.UnresolvedFails == 0 {
		return Outcome{Result: ResultPass, Evidence: ev}
	}
	return Outcome{Result: ResultFail, Evidence: ev}
}
