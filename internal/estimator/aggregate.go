package estimator

// RatesUSDPerMinute is the per-OS billing table.
var RatesUSDPerMinute = map[RunnerOS]float64{
	OSLinux:   0.008,
	OSWindows: 0.016,
	OSMacOS:   0.08,
}

// RateFor returns the per-minute rate for os, falling back to the Linux rate.
func RateFor(os RunnerOS) float64 {
	if r, ok := RatesUSDPerMinute[os]; ok {
		return r
	}
	return RatesUSDPerMinute[OSLinux]
}

// OSAggregate is the per-runner-OS breakdown of an estimate.
type OSAggregate struct {
	RunnerOS      RunnerOS `json:"runnerOs"`
	Jobs          int      `json:"jobs"`
	StepCount     int      `json:"stepCount"`
	MinutesPerRun float64  `json:"minutesPerRun"`
	CostPerRunUSD float64  `json:"costPerRunUsd"`
}

// osGroup accumulates at full precision; rounding happens in emit.
type osGroup struct {
	os         RunnerOS
	jobs       int
	steps      int
	minutes    float64
	costPerRun float64
}

func (g *osGroup) emit() OSAggregate {
	return OSAggregate{
		RunnerOS:      g.os,
		Jobs:          g.jobs,
		StepCount:     g.steps,
		MinutesPerRun: Round2(g.minutes),
		CostPerRunUSD: Round2(g.costPerRun),
	}
}

// aggregate groups jobs by OS in order of first appearance and returns the
// groups together with their unrounded sum.
func aggregate(jobs []Job) ([]*osGroup, osGroup) {
	var groups []*osGroup
	index := make(map[RunnerOS]*osGroup)
	for _, j := range jobs {
		g, ok := index[j.RunnerOS]
		if !ok {
			g = &osGroup{os: j.RunnerOS}
			index[j.RunnerOS] = g
			groups = append(groups, g)
		}
		g.jobs++
		g.steps += j.StepCount
		g.minutes += j.MinutesPerRun
		g.costPerRun += j.MinutesPerRun * RateFor(j.RunnerOS)
	}

	var total osGroup
	for _, g := range groups {
		total.jobs += g.jobs
		total.steps += g.steps
		total.minutes += g.minutes
		total.costPerRun += g.costPerRun
	}
	return groups, total
}
