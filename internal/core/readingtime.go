package core

import "math"

// WordsPerMinute is the fixed reading speed used for time estimates.
const WordsPerMinute = 238

// EstimateReadingTime converts a word count to whole minutes, never
// returning less than one minute.
func EstimateReadingTime(wordCount int) int {
	if wordCount <= 0 {
		return 1
	}
	minutes := int(math.Round(float64(wordCount) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}
