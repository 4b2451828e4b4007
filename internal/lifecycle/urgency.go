package lifecycle

// Urgency is independent of status and only drives triage ordering.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

func (u Urgency) Valid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Rank is higher for more urgent reports; unknown values rank 0.
func (u Urgency) Rank() int { return urgencyRank[u] }
