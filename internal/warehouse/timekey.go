package warehouse

// The upstream extraction process occasionally emits out-of-range hour and
// day-of-week values. The policy is repair, not rejection: values are folded
// back into range by modulo wraparound and the repair is counted upstream.

// RepairHour folds any integer into [0, 23]. Negative inputs wrap the same
// way positive ones do.
func RepairHour(hour int) int {
	hour %= 24
	if hour < 0 {
		hour += 24
	}
	return hour
}

// RepairDOW folds any integer into [0, 6].
func RepairDOW(dow int) int {
	dow %= 7
	if dow < 0 {
		dow += 7
	}
	return dow
}

// TimeKey encodes a repaired (dow, hour) pair into the composite key stored
// on the fact rows. The encoding is injective over the 168 valid pairs.
func TimeKey(dow, hour int) int {
	return dow*100 + hour
}

// SplitTimeKey decodes a composite time key back into (dow, hour). Only
// defined for keys produced by TimeKey.
func SplitTimeKey(key int) (dow, hour int) {
	return key / 100, key % 100
}
