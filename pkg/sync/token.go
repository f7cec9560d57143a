package sync

// AdvanceToken keeps the watermark monotonic. Tokens are opaque strings
// compared lexicographically, so formats whose string order matches their
// true order (zero-padded counters, ISO timestamps) advance correctly even
// when the connector delivers records out of order. An empty candidate never
// regresses the watermark.
func AdvanceToken(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if candidate > current {
		return candidate
	}
	return current
}
