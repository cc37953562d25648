package estimator

import (
	"regexp"
	"strings"
)

// RunnerOS is the operating system image a job runs on.
type RunnerOS string

const (
	OSLinux   RunnerOS = "linux"
	OSWindows RunnerOS = "windows"
	OSMacOS   RunnerOS = "macos"
)

// Step timing model, in minutes.
const (
	baseJobMinutes = 2.0
	usesStepMin    = 1.5
	runStepMin     = 3.0
)

// Job is one job block recognized by the scanner.
type Job struct {
	Name          string   `json:"name"`
	RunnerOS      RunnerOS `json:"runnerOs"`
	StepCount     int      `json:"stepCount"`
	MinutesPerRun float64  `json:"minutesPerRun"`
}

// FallbackJob stands in for a workflow whose jobs could not be recognized.
var FallbackJob = Job{
	Name:          "workflow",
	RunnerOS:      OSLinux,
	StepCount:     3,
	MinutesPerRun: 8.5,
}

// Column offsets are exact: jobs at 2 spaces, job keys at 4, steps at 6.
var (
	jobsLine   = regexp.MustCompile(`^\s*jobs:\s*$`)
	jobHeader  = regexp.MustCompile(`^  ([A-Za-z0-9_-]+):\s*$`)
	runsOnLine = regexp.MustCompile(`^    runs-on:(.*)$`)
	usesLine   = regexp.MustCompile(`^      - uses:`)
	runLine    = regexp.MustCompile(`^      - run:`)
)

// ScanWorkflow extracts jobs from workflow text line by line. It does not
// parse YAML: it only recognizes job headers, runs-on and uses/run steps at
// their conventional indentation. It never fails; when nothing is recognized
// it returns FallbackJob.
func ScanWorkflow(text string) []Job {
	var (
		jobs    []Job
		current *Job
		inJobs  bool
	)
	flush := func() {
		if current != nil {
			jobs = append(jobs, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = stripComment(line)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !inJobs {
			inJobs = jobsLine.MatchString(line)
			continue
		}

		if m := jobHeader.FindStringSubmatch(line); m != nil {
			flush()
			current = &Job{Name: m[1], RunnerOS: OSLinux, MinutesPerRun: baseJobMinutes}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case runsOnLine.MatchString(line):
			current.RunnerOS = runnerOSFor(runsOnLine.FindStringSubmatch(line)[1])
		case usesLine.MatchString(line):
			current.StepCount++
			current.MinutesPerRun += usesStepMin
		case runLine.MatchString(line):
			current.StepCount++
			current.MinutesPerRun += runStepMin
		}
	}
	flush()

	if len(jobs) == 0 {
		return []Job{FallbackJob}
	}
	return jobs
}

// stripComment cuts the line at the first '#', even inside quoted strings.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func runnerOSFor(value string) RunnerOS {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "windows"):
		return OSWindows
	case strings.Contains(v, "mac"):
		return OSMacOS
	default:
		return OSLinux
	}
}
