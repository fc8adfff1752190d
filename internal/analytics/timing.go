package analytics

import "time"

// averageCompletionTime is the mean time, in seconds, from a user's first submission on the
// step to their first correct one. Users who never passed are ignored, as are durations above
// limit when limit > 0. Returns nil when nothing is left to average.
func averageCompletionTime(submissions []Submission, limit time.Duration) *float64 {
	first := map[uint]time.Time{}
	firstCorrect := map[uint]time.Time{}
	for _, submission := range submissions {
		at := submission.SubmissionTime
		if at == nil {
			at = submission.AttemptTime
		}
		if at == nil {
			continue
		}
		if seen, ok := first[submission.UserID]; !ok || at.Before(seen) {
			first[submission.UserID] = *at
		}
		if submission.Correct() {
			if seen, ok := firstCorrect[submission.UserID]; !ok || at.Before(seen) {
				firstCorrect[submission.UserID] = *at
			}
		}
	}

	var total float64
	var count int
	for userID, passedAt := range firstCorrect {
		elapsed := passedAt.Sub(first[userID])
		if limit > 0 && elapsed > limit {
			continue
		}
		total += elapsed.Seconds()
		count++
	}
	if count == 0 {
		return nil
	}
	return floatPtr(total / float64(count))
}
