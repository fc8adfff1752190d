package analytics

import (
	"math"
	"sort"
)

// groupShare is the classic upper/lower group fraction for item discrimination.
const groupShare = 0.27

// applyDiscrimination computes the discrimination index for every step of one lesson.
// Users are ranked by their summed score over the lesson; null scores count as zero.
func applyDiscrimination(results []StepMetrics, lesson []int, byStep map[uint][]Submission, opts Options) {
	if len(lesson) == 0 {
		return
	}
	lessonID := results[lesson[0]].LessonID

	opts.guard("lesson", lessonID, func() {
		scores := map[uint]float64{}
		for _, ri := range lesson {
			for _, submission := range byStep[results[ri].StepID] {
				score := 0.0
				if submission.Score != nil {
					score = *submission.Score
				}
				scores[submission.UserID] += score
			}
		}
		if len(scores) < 2 {
			return
		}

		top, bottom, n := DiscriminationGroups(scores)

		values := make(map[int]*float64, len(lesson))
		for _, ri := range lesson {
			_, passed := distinctUsers(byStep[results[ri].StepID])
			upper, lower := 0, 0
			for userID := range passed {
				if _, ok := top[userID]; ok {
					upper++
				}
				if _, ok := bottom[userID]; ok {
					lower++
				}
			}
			values[ri] = floatPtr(float64(upper-lower) / float64(n))
		}
		for ri, value := range values {
			results[ri].DiscriminationIndex = value
		}
	})
}

// DiscriminationGroups ranks users by score (descending, then by id) and returns the top and
// bottom groups of size n = max(1, floor(0.27 * users)). The groups overlap when 2n exceeds
// the number of users.
func DiscriminationGroups(scores map[uint]float64) (top, bottom map[uint]struct{}, n int) {
	users := make([]uint, 0, len(scores))
	for userID := range scores {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool {
		if scores[users[i]] != scores[users[j]] {
			return scores[users[i]] > scores[users[j]]
		}
		return users[i] < users[j]
	})

	n = int(math.Floor(groupShare * float64(len(users))))
	if n < 1 {
		n = 1
	}
	if n > len(users) {
		n = len(users)
	}

	top = make(map[uint]struct{}, n)
	bottom = make(map[uint]struct{}, n)
	for _, userID := range users[:n] {
		top[userID] = struct{}{}
	}
	for _, userID := range users[len(users)-n:] {
		bottom[userID] = struct{}{}
	}
	return top, bottom, n
}
