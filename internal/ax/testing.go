package ax

// NewForTest returns a probe backed by the given query instead of the
// platform accessibility API.
func NewForTest(query func(x, y int32) (Element, bool)) *Probe {
	return &Probe{deadline: DefaultDeadline, query: query}
}
