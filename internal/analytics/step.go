package analytics

import "sort"

// StepInput is everything the step calculator needs for one or more courses.
type StepInput struct {
	Steps       []StepRef
	Submissions []Submission
	Comments    []Comment
	Info        map[uint]StepInfo
}

// StepMetrics is the per-step metrics record.
//
// DifficultyIndex keeps its historical name although it measures ease: the share of
// correct submissions among all submissions on the step.
type StepMetrics struct {
	StepID         uint   `json:"step_id"`
	CourseID       uint   `json:"course_id"`
	ModuleID       uint   `json:"module_id"`
	LessonID       uint   `json:"lesson_id"`
	ModulePosition int    `json:"module_position"`
	LessonPosition int    `json:"lesson_position"`
	StepPosition   int    `json:"step_position"`
	StepType       string `json:"step_type"`
	StepCost       *int   `json:"step_cost"`

	DifficultyIndex          float64  `json:"difficulty_index"`
	SuccessRate              float64  `json:"success_rate"`
	AvgAttemptsPerPassed     *float64 `json:"avg_attempts_per_passed"`
	SkipRate                 *float64 `json:"skip_rate"`
	CompletionIndex          float64  `json:"completion_index"`
	DiscriminationIndex      *float64 `json:"discrimination_index"`
	CommentRate              float64  `json:"comment_rate"`
	UsefulnessIndex          *float64 `json:"usefulness_index"`
	AvgCompletionTimeSeconds *float64 `json:"avg_completion_time_seconds"`

	Views       *int `json:"views"`
	UniqueViews *int `json:"unique_views"`
	Passed      *int `json:"passed"`

	PassedUsers            int `json:"passed_users"`
	AttemptedUsers         int `json:"attempted_users"`
	SubmissionCount        int `json:"submission_count"`
	CorrectSubmissionCount int `json:"correct_submission_count"`
	CommentCount           int `json:"comment_count"`

	Quality map[string]Band `json:"quality"`
}

// ComputeStepMetrics returns one record per input step, in course order.
// Steps from several courses may be mixed; ordering-based indices never cross a course boundary.
func ComputeStepMetrics(input StepInput, opts Options) []StepMetrics {
	steps := SortSteps(input.Steps)
	results := make([]StepMetrics, len(steps))
	index := make(map[uint]int, len(steps))
	for i, step := range steps {
		results[i] = newStepMetrics(step, input.Info[step.StepID])
		index[step.StepID] = i
	}

	byStep := make(map[uint][]Submission, len(steps))
	for _, submission := range input.Submissions {
		if _, ok := index[submission.StepID]; ok {
			byStep[submission.StepID] = append(byStep[submission.StepID], submission)
		}
	}

	commenters := make(map[uint]map[uint]struct{}, len(steps))
	commentCounts := make(map[uint]int, len(steps))
	for _, comment := range input.Comments {
		if comment.Deleted {
			continue
		}
		if _, ok := index[comment.StepID]; !ok {
			continue
		}
		commentCounts[comment.StepID]++
		if commenters[comment.StepID] == nil {
			commenters[comment.StepID] = map[uint]struct{}{}
		}
		commenters[comment.StepID][comment.UserID] = struct{}{}
	}

	for i := range results {
		stepID := results[i].StepID
		opts.guard("step", stepID, func() {
			record := results[i]
			applyStepStats(&record, byStep[stepID], len(commenters[stepID]), commentCounts[stepID], opts)
			results[i] = record
		})
	}

	for _, sequence := range courseSequences(results) {
		applySequenceIndices(results, sequence, byStep, opts)
	}

	for _, lesson := range lessonGroups(results) {
		applyDiscrimination(results, lesson, byStep, opts)
	}

	for i := range results {
		results[i].Quality = Assess(results[i])
	}

	return results
}

// SortSteps returns a copy of steps in course order:
// (course, module position, lesson position, step position), ties broken by step id.
func SortSteps(steps []StepRef) []StepRef {
	sorted := append([]StepRef(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.CourseID != b.CourseID:
			return a.CourseID < b.CourseID
		case a.ModulePosition != b.ModulePosition:
			return a.ModulePosition < b.ModulePosition
		case a.LessonPosition != b.LessonPosition:
			return a.LessonPosition < b.LessonPosition
		case a.StepPosition != b.StepPosition:
			return a.StepPosition < b.StepPosition
		default:
			return a.StepID < b.StepID
		}
	})
	return sorted
}

func newStepMetrics(step StepRef, info StepInfo) StepMetrics {
	return StepMetrics{
		StepID:         step.StepID,
		CourseID:       step.CourseID,
		ModuleID:       step.ModuleID,
		LessonID:       step.LessonID,
		ModulePosition: step.ModulePosition,
		LessonPosition: step.LessonPosition,
		StepPosition:   step.StepPosition,
		StepType:       step.Type,
		StepCost:       step.Cost,
		Views:          info.Views,
		UniqueViews:    info.UniqueViews,
		Passed:         info.Passed,
	}
}

func applyStepStats(record *StepMetrics, submissions []Submission, commenters, comments int, opts Options) {
	attempted, passed := distinctUsers(submissions)
	correct := 0
	for _, submission := range submissions {
		if submission.Correct() {
			correct++
		}
	}

	total := len(submissions)
	record.SubmissionCount = total
	record.CorrectSubmissionCount = correct
	record.AttemptedUsers = len(attempted)
	record.PassedUsers = len(passed)
	record.DifficultyIndex = ratio(correct, total)
	record.SuccessRate = ratio(len(passed), len(attempted))
	record.AvgAttemptsPerPassed = ratioPtr(total, len(passed))
	record.AvgCompletionTimeSeconds = averageCompletionTime(submissions, opts.CompletionTimeCap)
	record.CommentCount = comments

	if record.UniqueViews != nil && *record.UniqueViews > 0 {
		record.CommentRate = ratio(commenters, *record.UniqueViews)
		if record.Views != nil {
			record.UsefulnessIndex = ratioPtr(*record.Views, *record.UniqueViews)
		}
	}
}

// courseSequences splits the ordered results into per-course index runs.
func courseSequences(results []StepMetrics) [][]int {
	var sequences [][]int
	for i := range results {
		if i == 0 || results[i].CourseID != results[i-1].CourseID {
			sequences = append(sequences, nil)
		}
		last := len(sequences) - 1
		sequences[last] = append(sequences[last], i)
	}
	return sequences
}

// lessonGroups collects result indices per lesson, keeping first-seen lesson order.
func lessonGroups(results []StepMetrics) [][]int {
	positions := map[uint]int{}
	var groups [][]int
	for i := range results {
		lessonID := results[i].LessonID
		pos, ok := positions[lessonID]
		if !ok {
			pos = len(groups)
			positions[lessonID] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], i)
	}
	return groups
}

func distinctUsers(submissions []Submission) (attempted, passed map[uint]struct{}) {
	attempted = make(map[uint]struct{}, len(submissions))
	passed = map[uint]struct{}{}
	for _, submission := range submissions {
		attempted[submission.UserID] = struct{}{}
		if submission.Correct() {
			passed[submission.UserID] = struct{}{}
		}
	}
	return attempted, passed
}
