package analytics

// Completion statuses reported alongside a course completion record.
const (
	CompletionStatusOK                 = "ok"
	CompletionStatusNoSubmittableSteps = "no_submittable_steps"
	CompletionStatusNoLearners         = "no_learners"
	CompletionStatusCourseNotFound     = "course_not_found"
)

// CompletionInput is the data for one course's completion buckets.
type CompletionInput struct {
	CourseID           uint
	SubmittableStepIDs []uint
	LearnerIDs         []uint
	Submissions        []Submission
}

// CompletionBucket is one completion range.
type CompletionBucket struct {
	ThresholdSteps int     `json:"threshold_steps"`
	Count          int     `json:"count"`
	Percentage     float64 `json:"percentage"`
}

// CompletionRanges are the four mutually exclusive learner buckets.
type CompletionRanges struct {
	Gte80     CompletionBucket `json:"gte_80"`
	Gte50Lt80 CompletionBucket `json:"gte_50_lt_80"`
	Gte25Lt50 CompletionBucket `json:"gte_25_lt_50"`
	Lt25      CompletionBucket `json:"lt_25"`
}

// Total sums the bucket counts.
func (r CompletionRanges) Total() int {
	return r.Gte80.Count + r.Gte50Lt80.Count + r.Gte25Lt50.Count + r.Lt25.Count
}

// CourseCompletion is the completion distribution of a course's learners.
type CourseCompletion struct {
	CourseID              uint             `json:"course_id"`
	TotalLearners         int              `json:"total_learners"`
	TotalSubmittableSteps int              `json:"total_submittable_steps"`
	Ranges                CompletionRanges `json:"ranges"`
	Status                string           `json:"status"`
}

// ThresholdSteps returns ceil(total * percent / 100) without floating point rounding.
func ThresholdSteps(total, percent int) int {
	if total <= 0 || percent <= 0 {
		return 0
	}
	return (total*percent + 99) / 100
}

// EmptyCompletion is the zero-result record for a course that cannot be evaluated.
func EmptyCompletion(courseID uint, status string) CourseCompletion {
	return CourseCompletion{CourseID: courseID, Status: status}
}

// ComputeCourseCompletion buckets enrolled learners by the number of distinct submittable
// steps they passed. The lt_25 bucket is whatever remains, so the counts always add up to
// TotalLearners.
func ComputeCourseCompletion(input CompletionInput) CourseCompletion {
	steps := make(map[uint]struct{}, len(input.SubmittableStepIDs))
	for _, stepID := range input.SubmittableStepIDs {
		steps[stepID] = struct{}{}
	}
	if len(steps) == 0 {
		return EmptyCompletion(input.CourseID, CompletionStatusNoSubmittableSteps)
	}

	learners := make(map[uint]struct{}, len(input.LearnerIDs))
	for _, learnerID := range input.LearnerIDs {
		learners[learnerID] = struct{}{}
	}

	totalSteps := len(steps)
	result := CourseCompletion{
		CourseID:              input.CourseID,
		TotalLearners:         len(learners),
		TotalSubmittableSteps: totalSteps,
		Ranges: CompletionRanges{
			Gte80:     CompletionBucket{ThresholdSteps: ThresholdSteps(totalSteps, 80)},
			Gte50Lt80: CompletionBucket{ThresholdSteps: ThresholdSteps(totalSteps, 50)},
			Gte25Lt50: CompletionBucket{ThresholdSteps: ThresholdSteps(totalSteps, 25)},
		},
		Status: CompletionStatusOK,
	}
	if len(learners) == 0 {
		result.Status = CompletionStatusNoLearners
		return result
	}

	passed := make(map[uint]map[uint]struct{}, len(learners))
	for _, submission := range input.Submissions {
		if !submission.Correct() {
			continue
		}
		if _, ok := learners[submission.UserID]; !ok {
			continue
		}
		if _, ok := steps[submission.StepID]; !ok {
			continue
		}
		if passed[submission.UserID] == nil {
			passed[submission.UserID] = map[uint]struct{}{}
		}
		passed[submission.UserID][submission.StepID] = struct{}{}
	}

	ranges := &result.Ranges
	for learnerID := range learners {
		count := len(passed[learnerID])
		switch {
		case count >= ranges.Gte80.ThresholdSteps:
			ranges.Gte80.Count++
		case count >= ranges.Gte50Lt80.ThresholdSteps:
			ranges.Gte50Lt80.Count++
		case count >= ranges.Gte25Lt50.ThresholdSteps:
			ranges.Gte25Lt50.Count++
		}
	}
	ranges.Lt25.Count = result.TotalLearners - ranges.Gte80.Count - ranges.Gte50Lt80.Count - ranges.Gte25Lt50.Count

	total := float64(result.TotalLearners)
	ranges.Gte80.Percentage = float64(ranges.Gte80.Count) / total
	ranges.Gte50Lt80.Percentage = float64(ranges.Gte50Lt80.Count) / total
	ranges.Gte25Lt50.Percentage = float64(ranges.Gte25Lt50.Count) / total
	ranges.Lt25.Percentage = float64(ranges.Lt25.Count) / total

	return result
}
