package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intPointer(v int) *int {
	return &v
}

func scorePointer(v float64) *float64 {
	return &v
}

func attempt(userID, stepID uint, status string) Submission {
	return Submission{UserID: userID, StepID: stepID, Status: status}
}

func repeat(sub Submission, times int) []Submission {
	out := make([]Submission, times)
	for i := range out {
		out[i] = sub
	}
	return out
}

func findStep(t *testing.T, results []StepMetrics, stepID uint) StepMetrics {
	t.Helper()
	for _, result := range results {
		if result.StepID == stepID {
			return result
		}
	}
	t.Fatalf("step %d missing from results", stepID)
	return StepMetrics{}
}

func TestComputeStepMetricsBasicRatios(t *testing.T) {
	var submissions []Submission
	submissions = append(submissions, attempt(1, 10, "wrong"), attempt(1, 10, StatusCorrect))
	submissions = append(submissions, attempt(2, 10, "wrong"))
	submissions = append(submissions, repeat(attempt(2, 10, StatusCorrect), 2)...)
	submissions = append(submissions, repeat(attempt(3, 10, StatusCorrect), 3)...)
	submissions = append(submissions, attempt(4, 10, "wrong"), attempt(5, 10, "wrong"))
	require.Len(t, submissions, 10)

	results := ComputeStepMetrics(StepInput{
		Steps:       []StepRef{{StepID: 10, LessonID: 1, ModuleID: 1, CourseID: 1}},
		Submissions: submissions,
	}, Options{})

	require.Len(t, results, 1)
	step := results[0]
	require.InDelta(t, 0.6, step.DifficultyIndex, 1e-9)
	require.InDelta(t, 0.6, step.SuccessRate, 1e-9)
	require.NotNil(t, step.AvgAttemptsPerPassed)
	require.InDelta(t, 10.0/3.0, *step.AvgAttemptsPerPassed, 1e-9)
	require.Equal(t, 5, step.AttemptedUsers)
	require.Equal(t, 3, step.PassedUsers)
	require.Equal(t, 10, step.SubmissionCount)
	require.Equal(t, 6, step.CorrectSubmissionCount)
}

func TestComputeStepMetricsWithoutSubmissions(t *testing.T) {
	results := ComputeStepMetrics(StepInput{
		Steps: []StepRef{{StepID: 1, LessonID: 1, CourseID: 1}},
	}, Options{})

	require.Len(t, results, 1)
	step := results[0]
	require.Zero(t, step.DifficultyIndex)
	require.Zero(t, step.SuccessRate)
	require.Nil(t, step.AvgAttemptsPerPassed)
	require.Nil(t, step.DiscriminationIndex)
	require.Nil(t, step.UsefulnessIndex)
	require.Nil(t, step.SkipRate, "a single step is also the last step")
	require.Zero(t, step.CompletionIndex)
	require.Empty(t, step.Quality)
}

func TestComputeStepMetricsEmptyInput(t *testing.T) {
	require.NotPanics(t, func() {
		results := ComputeStepMetrics(StepInput{}, Options{})
		require.Empty(t, results)
	})
}

func TestComputeStepMetricsOrdersByStructure(t *testing.T) {
	steps := []StepRef{
		{StepID: 5, CourseID: 2, ModulePosition: 1, LessonPosition: 1, StepPosition: 1},
		{StepID: 4, CourseID: 1, ModulePosition: 2, LessonPosition: 1, StepPosition: 1},
		{StepID: 3, CourseID: 1, ModulePosition: 1, LessonPosition: 2, StepPosition: 1},
		{StepID: 2, CourseID: 1, ModulePosition: 1, LessonPosition: 1, StepPosition: 2},
		{StepID: 1, CourseID: 1, ModulePosition: 1, LessonPosition: 1, StepPosition: 1},
	}

	results := ComputeStepMetrics(StepInput{Steps: steps}, Options{})

	ids := make([]uint, 0, len(results))
	for _, result := range results {
		ids = append(ids, result.StepID)
	}
	require.Equal(t, []uint{1, 2, 3, 4, 5}, ids)
}

func TestSkipRateAndCompletionIndex(t *testing.T) {
	steps := []StepRef{
		{StepID: 1, LessonID: 1, CourseID: 1, StepPosition: 1},
		{StepID: 2, LessonID: 1, CourseID: 1, StepPosition: 2},
		{StepID: 3, LessonID: 1, CourseID: 1, StepPosition: 3},
	}
	submissions := []Submission{
		// user 1 fails step 1 and still passes step 3
		attempt(1, 1, "wrong"),
		attempt(1, 3, StatusCorrect),
		// user 2 fails step 1 and never comes back
		attempt(2, 1, "wrong"),
		// user 3 passes step 1, then fails step 2 and stops
		attempt(3, 1, StatusCorrect),
		attempt(3, 2, "wrong"),
	}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	first := findStep(t, results, 1)
	require.NotNil(t, first.SkipRate)
	require.InDelta(t, 0.5, *first.SkipRate, 1e-9)
	require.InDelta(t, 1.0/3.0, first.CompletionIndex, 1e-9)

	second := findStep(t, results, 2)
	require.NotNil(t, second.SkipRate)
	require.Zero(t, *second.SkipRate)
	require.InDelta(t, 1.0, second.CompletionIndex, 1e-9)

	last := findStep(t, results, 3)
	require.Nil(t, last.SkipRate)
	require.Equal(t, 0.0, last.CompletionIndex)
}

func TestSkipRateIsZeroWhenNobodyFailed(t *testing.T) {
	steps := []StepRef{
		{StepID: 1, LessonID: 1, CourseID: 1, StepPosition: 1},
		{StepID: 2, LessonID: 1, CourseID: 1, StepPosition: 2},
	}
	submissions := []Submission{attempt(1, 1, StatusCorrect), attempt(1, 2, StatusCorrect)}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	first := findStep(t, results, 1)
	require.NotNil(t, first.SkipRate)
	require.Zero(t, *first.SkipRate)
	require.Zero(t, first.CompletionIndex)
}

func TestSequenceIndicesStayWithinCourse(t *testing.T) {
	steps := []StepRef{
		{StepID: 1, LessonID: 1, CourseID: 1, StepPosition: 1},
		{StepID: 2, LessonID: 2, CourseID: 2, StepPosition: 1},
		{StepID: 3, LessonID: 2, CourseID: 2, StepPosition: 2},
	}
	submissions := []Submission{
		attempt(1, 1, "wrong"),
		attempt(1, 3, StatusCorrect),
	}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	only := findStep(t, results, 1)
	require.Nil(t, only.SkipRate, "step 1 is the last step of course 1")
	require.Zero(t, only.CompletionIndex)
}

func TestDiscriminationIndexTopAndBottomGroups(t *testing.T) {
	steps := []StepRef{
		{StepID: 1, LessonID: 7, CourseID: 1, StepPosition: 1},
		{StepID: 2, LessonID: 7, CourseID: 1, StepPosition: 2},
	}
	var submissions []Submission
	for user := uint(1); user <= 10; user++ {
		submissions = append(submissions, Submission{UserID: user, StepID: 2, Status: "wrong", Score: scorePointer(float64(user))})
	}
	submissions = append(submissions,
		attempt(10, 1, StatusCorrect),
		attempt(9, 1, StatusCorrect),
		attempt(1, 1, "wrong"),
		attempt(2, 1, "wrong"),
	)

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	target := findStep(t, results, 1)
	require.NotNil(t, target.DiscriminationIndex)
	require.InDelta(t, 1.0, *target.DiscriminationIndex, 1e-9)

	other := findStep(t, results, 2)
	require.NotNil(t, other.DiscriminationIndex)
	require.Zero(t, *other.DiscriminationIndex)
}

func TestDiscriminationIndexNegativeIsReported(t *testing.T) {
	steps := []StepRef{
		{StepID: 1, LessonID: 1, CourseID: 1, StepPosition: 1},
		{StepID: 2, LessonID: 1, CourseID: 1, StepPosition: 2},
	}
	submissions := []Submission{
		{UserID: 1, StepID: 2, Status: StatusCorrect, Score: scorePointer(5)},
		{UserID: 2, StepID: 2, Status: "wrong", Score: scorePointer(0)},
		{UserID: 2, StepID: 1, Status: StatusCorrect},
		{UserID: 1, StepID: 1, Status: "wrong"},
	}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	first := findStep(t, results, 1)
	require.NotNil(t, first.DiscriminationIndex)
	require.InDelta(t, -1.0, *first.DiscriminationIndex, 1e-9)
	require.Equal(t, BandBad, first.Quality["discrimination_index"])
}

func TestDiscriminationIndexNeedsTwoUsers(t *testing.T) {
	steps := []StepRef{{StepID: 1, LessonID: 1, CourseID: 1}}
	submissions := []Submission{attempt(1, 1, StatusCorrect), attempt(1, 1, "wrong")}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})

	require.Nil(t, results[0].DiscriminationIndex)
}

func TestDiscriminationIndexBounds(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		steps := []StepRef{
			{StepID: 1, LessonID: 1, CourseID: 1, StepPosition: 1},
			{StepID: 2, LessonID: 1, CourseID: 1, StepPosition: 2},
			{StepID: 3, LessonID: 1, CourseID: 1, StepPosition: 3},
		}
		users := 2 + rng.Intn(40)
		var submissions []Submission
		for i := 0; i < users*4; i++ {
			status := "wrong"
			if rng.Intn(2) == 0 {
				status = StatusCorrect
			}
			var score *float64
			if rng.Intn(4) != 0 {
				score = scorePointer(float64(rng.Intn(10)))
			}
			submissions = append(submissions, Submission{
				UserID: uint(1 + rng.Intn(users)),
				StepID: uint(1 + rng.Intn(3)),
				Status: status,
				Score:  score,
			})
		}

		results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})
		for _, result := range results {
			if result.DiscriminationIndex == nil {
				continue
			}
			require.GreaterOrEqual(t, *result.DiscriminationIndex, -1.0, "seed %d", seed)
			require.LessOrEqual(t, *result.DiscriminationIndex, 1.0, "seed %d", seed)
		}
	}
}

func TestDiscriminationGroupsOverlapForSmallLessons(t *testing.T) {
	top, bottom, n := DiscriminationGroups(map[uint]float64{1: 3, 2: 2, 3: 1})

	require.Equal(t, 1, n)
	require.Contains(t, top, uint(1))
	require.Contains(t, bottom, uint(3))

	top, bottom, n = DiscriminationGroups(map[uint]float64{1: 1, 2: 1})
	require.Equal(t, 1, n)
	require.Contains(t, top, uint(1), "ties are broken by user id")
	require.Contains(t, bottom, uint(2))
}

func TestEngagementMetrics(t *testing.T) {
	steps := []StepRef{{StepID: 1, LessonID: 1, CourseID: 1}}
	comments := []Comment{
		{UserID: 1, StepID: 1},
		{UserID: 1, StepID: 1},
		{UserID: 2, StepID: 1},
		{UserID: 3, StepID: 1, Deleted: true},
		{UserID: 4, StepID: 99},
	}
	info := map[uint]StepInfo{1: {Views: intPointer(30), UniqueViews: intPointer(10), Passed: intPointer(4)}}

	results := ComputeStepMetrics(StepInput{Steps: steps, Comments: comments, Info: info}, Options{})

	step := results[0]
	require.Equal(t, 3, step.CommentCount)
	require.InDelta(t, 0.2, step.CommentRate, 1e-9)
	require.NotNil(t, step.UsefulnessIndex)
	require.InDelta(t, 3.0, *step.UsefulnessIndex, 1e-9)
	require.Equal(t, 30, *step.Views)
	require.Equal(t, 10, *step.UniqueViews)
	require.Equal(t, 4, *step.Passed)
	require.Equal(t, BandGood, step.Quality["comment_rate"])
	require.Equal(t, BandGood, step.Quality["usefulness_index"])
}

func TestEngagementMetricsWithoutViews(t *testing.T) {
	steps := []StepRef{{StepID: 1, LessonID: 1, CourseID: 1}}
	comments := []Comment{{UserID: 1, StepID: 1}}
	info := map[uint]StepInfo{1: {Views: intPointer(5), UniqueViews: intPointer(0)}}

	results := ComputeStepMetrics(StepInput{Steps: steps, Comments: comments, Info: info}, Options{})

	require.Zero(t, results[0].CommentRate)
	require.Nil(t, results[0].UsefulnessIndex)
	require.Equal(t, 1, results[0].CommentCount)
}

func TestAverageCompletionTime(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(offset time.Duration) *time.Time {
		value := start.Add(offset)
		return &value
	}
	submissions := []Submission{
		{UserID: 1, StepID: 1, Status: "wrong", SubmissionTime: at(0)},
		{UserID: 1, StepID: 1, Status: StatusCorrect, SubmissionTime: at(time.Minute)},
		{UserID: 1, StepID: 1, Status: StatusCorrect, SubmissionTime: at(10 * time.Minute)},
		{UserID: 2, StepID: 1, Status: "wrong", SubmissionTime: at(0)},
		{UserID: 2, StepID: 1, Status: StatusCorrect, SubmissionTime: at(3 * time.Minute)},
		{UserID: 3, StepID: 1, Status: "wrong", SubmissionTime: at(0)},
		{UserID: 3, StepID: 1, Status: StatusCorrect, SubmissionTime: at(5 * time.Hour)},
		{UserID: 4, StepID: 1, Status: "wrong", SubmissionTime: at(0)},
	}
	steps := []StepRef{{StepID: 1, LessonID: 1, CourseID: 1}}

	results := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{CompletionTimeCap: time.Hour})

	require.NotNil(t, results[0].AvgCompletionTimeSeconds)
	require.InDelta(t, 120.0, *results[0].AvgCompletionTimeSeconds, 1e-9)

	unfiltered := ComputeStepMetrics(StepInput{Steps: steps, Submissions: submissions}, Options{})
	require.InDelta(t, (60.0+180.0+18000.0)/3.0, *unfiltered[0].AvgCompletionTimeSeconds, 1e-9)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		metric string
		value  float64
		want   Band
	}{
		{"success_rate", 0.9, BandGood},
		{"success_rate", 0.82, BandNormal},
		{"success_rate", 0.5, BandBad},
		{"completion_index", 0.05, BandGood},
		{"completion_index", 0.10, BandNormal},
		{"completion_index", 0.2, BandBad},
		{"avg_attempts_per_passed", 4, BandBad},
		{"usefulness_index", 1.0, BandBad},
		{"usefulness_index", 2.0, BandNormal},
		{"usefulness_index", 3.0, BandGood},
	}
	for _, tc := range cases {
		got, ok := Classify(tc.metric, tc.value)
		require.True(t, ok, tc.metric)
		require.Equal(t, tc.want, got, "%s=%v", tc.metric, tc.value)
	}

	_, ok := Classify("views", 10)
	require.False(t, ok)
}

func TestFaultsAreReportedAndBatchContinues(t *testing.T) {
	var faults []string
	opts := Options{OnFault: func(scope string, id uint, err error) {
		faults = append(faults, scope)
	}}

	opts.guard("step", 1, func() { panic("boom") })
	opts.guard("lesson", 2, func() {})

	require.Equal(t, []string{"step"}, faults)
}
