package nodes

const DefaultMaxToolRoundTrips = 10

// normalizeMaxRoundTrips returns a sane default when the provided value is invalid.
func normalizeMaxRoundTrips(n int) int {
	if n <= 0 {
		return DefaultMaxToolRoundTrips
	}
	return n
}
