package projection

import "github.com/aristath/glidepath/internal/config"

// WithdrawalMode selects how the retirement withdrawal is specified.
type WithdrawalMode string

const (
	// WithdrawalPercent: the first retirement-year withdrawal is a percentage
	// of the balance at that point; subsequent years inflate that dollar
	// figure. The percentage holds only in year one.
	WithdrawalPercent WithdrawalMode = "percent"
	// WithdrawalDollar: a today's-dollars annual figure, inflated forward to
	// the retirement year and annually thereafter.
	WithdrawalDollar WithdrawalMode = "dollar"
)

// Assumption is an annual return model for one category or class.
type Assumption struct {
	MeanReturn float64 `json:"mean_return"`
	StdDev     float64 `json:"std_dev"`
}

// DefaultClassAssumptions returns the stock class-level return models used
// when no category override exists. Injected into the service so tests can
// substitute deterministic numbers.
func DefaultClassAssumptions() map[string]Assumption {
	return map[string]Assumption{
		"Stocks": {MeanReturn: 0.10, StdDev: 0.18},
		"Bonds":  {MeanReturn: 0.04, StdDev: 0.06},
		"Crypto": {MeanReturn: 0.15, StdDev: 0.60},
		"Other":  {MeanReturn: 0.03, StdDev: 0.05},
	}
}

// Params are the simulation knobs for one projection run.
// WithdrawalAmount is a percentage (e.g. 4 for 4%) in percent mode and a
// today's-dollars annual figure in dollar mode.
type Params struct {
	AnnualContribution float64        `json:"annual_contribution"`
	WithdrawalMode     WithdrawalMode `json:"withdrawal_mode"`
	WithdrawalAmount   float64        `json:"withdrawal_amount"`
	InflationRate      float64        `json:"inflation_rate"`
	Trials             int            `json:"trials"`
	EndAge             int            `json:"end_age"`
	PessimisticPctile  float64        `json:"pessimistic_pctile"`
	OptimisticPctile   float64        `json:"optimistic_pctile"`

	// Seed fixes the random source for reproducible runs; 0 means
	// time-seeded.
	Seed uint64 `json:"seed,omitempty"`
}

// DefaultParams returns a Params pre-filled from the configured simulation
// defaults, with a 4% percent-mode withdrawal.
func DefaultParams(defaults config.SimulationDefaults) Params {
	return Params{
		WithdrawalMode:    WithdrawalPercent,
		WithdrawalAmount:  4,
		InflationRate:     defaults.InflationRate,
		Trials:            defaults.Trials,
		EndAge:            defaults.EndAge,
		PessimisticPctile: defaults.PessimisticPctile,
		OptimisticPctile:  defaults.OptimisticPctile,
	}
}

// PathPoint is one (age, balance) step of a percentile trajectory.
type PathPoint struct {
	Age     int     `json:"age"`
	Balance float64 `json:"balance"`
}

// Result is the aggregated projection output.
//
// The three trajectories are per-age percentiles across all trials, not
// selected whole paths: the pessimistic line is the Nth percentile balance at
// each age independently, so none of the three is a realizable single path.
type Result struct {
	StartBalance  float64 `json:"start_balance"`
	CurrentAge    int     `json:"current_age"`
	RetirementAge int     `json:"retirement_age"`
	EndAge        int     `json:"end_age"`
	Trials        int     `json:"trials"`

	Pessimistic []PathPoint `json:"pessimistic"`
	Median      []PathPoint `json:"median"`
	Optimistic  []PathPoint `json:"optimistic"`

	// Fraction of trials whose balance stayed strictly positive at every
	// step, in [0, 1].
	SuccessProbability float64 `json:"success_probability"`

	MedianAtRetirement           float64 `json:"median_at_retirement"`
	MedianAtEnd                  float64 `json:"median_at_end"`
	TotalContributions           float64 `json:"total_contributions"`
	AnnualWithdrawalAtRetirement float64 `json:"annual_withdrawal_at_retirement"`

	Note string `json:"note"`
}

// percentileNote is attached to every result so callers do not mistake the
// fan chart for actual trajectories.
const percentileNote = "Percentile trajectories are computed independently at each age across all trials and do not represent any single simulated path."
