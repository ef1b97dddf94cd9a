package pkg

func Filter[T any](items []T, predicate func(T) bool) []T {
	filtered := []T{}
	for _, item := range items {
		if predicate(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// Converts a value suspected to be some kind of number into an int64.
// Values decoded from json arrive as float64, values from go code usually as int.
func NumToInt64(num any) (int64, bool) {
	switch num := num.(type) {
	case int:
		return int64(num), true
	case int32:
		return int64(num), true
	case int64:
		return num, true
	case uint32:
		return int64(num), true
	case float64:
		if num != float64(int64(num)) {
			return 0, false
		}
		return int64(num), true
	}
	return 0, false
}
