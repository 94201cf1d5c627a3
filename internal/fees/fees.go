package fees

// Split is the division of a settled charge between platform and earner.
type Split struct {
	Total         int64 `json:"total"`
	PlatformShare int64 `json:"platform_share"`
	EarnerShare   int64 `json:"earner_share"`
	FeePercent    int64 `json:"fee_percent"`
}

// Compute splits cost between platform and earner. The platform share is
// rounded up, so remainders always land on the platform side.
func Compute(cost, feePercent int64) Split {
	if cost < 0 {
		cost = 0
	}
	if feePercent < 0 {
		feePercent = 0
	}
	if feePercent > 100 {
		feePercent = 100
	}

	platform := (cost*feePercent + 99) / 100
	if platform > cost {
		platform = cost
	}

	return Split{
		Total:         cost,
		PlatformShare: platform,
		EarnerShare:   cost - platform,
		FeePercent:    feePercent,
	}
}
