package warehouse

import "strconv"

// rowBuffer sizes the reader-to-loader channel from the configured chunk
// size: at most that many rows sit in flight between the CSV reader and the
// batch loader, which is what bounds peak memory on the multi-gigabyte
// extracts.
func rowBuffer(chunkSize int) int {
	if chunkSize < 1 {
		return 1
	}
	return chunkSize
}

// parseInt parses a decimal integer field.
func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// parseFloatOrZero parses a float field, mapping empty (NULL in the extract)
// to 0. The first order of a user has no predecessor, so an absent
// days_since_prior_order means zero by policy, not missing data.
func parseFloatOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
