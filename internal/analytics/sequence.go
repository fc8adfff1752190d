package analytics

// applySequenceIndices fills skip rate and completion index for one course.
// sequence holds result indices in course order.
func applySequenceIndices(results []StepMetrics, sequence []int, byStep map[uint][]Submission, opts Options) {
	lastAttempt := map[uint]int{}
	lastCorrect := map[uint]int{}
	for k, ri := range sequence {
		for _, submission := range byStep[results[ri].StepID] {
			if prev, ok := lastAttempt[submission.UserID]; !ok || k > prev {
				lastAttempt[submission.UserID] = k
			}
			if submission.Correct() {
				if prev, ok := lastCorrect[submission.UserID]; !ok || k > prev {
					lastCorrect[submission.UserID] = k
				}
			}
		}
	}

	final := len(sequence) - 1
	for k, ri := range sequence {
		stepID := results[ri].StepID
		opts.guard("step", stepID, func() {
			record := results[ri]
			if k == final {
				record.SkipRate = nil
				record.CompletionIndex = 0
				results[ri] = record
				return
			}

			attempted, passed := distinctUsers(byStep[stepID])

			failed, skipped := 0, 0
			stopped := 0
			for userID := range attempted {
				if _, ok := passed[userID]; !ok {
					failed++
					if later, ok := lastCorrect[userID]; ok && later > k {
						skipped++
					}
				}
				if lastAttempt[userID] <= k {
					stopped++
				}
			}

			record.SkipRate = floatPtr(ratio(skipped, failed))
			record.CompletionIndex = ratio(stopped, len(attempted))
			results[ri] = record
		})
	}
}
