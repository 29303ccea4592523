package types

// Tier constants classify narrative importance at entity creation.
const (
	TierCore       = "核心" // Protagonist-level, drives the main plot
	TierMajor      = "重要" // Recurring, plot-relevant
	TierMinor      = "普通" // Named but incidental
	TierDecorative = "装饰" // Scene dressing, unlikely to recur
)

// ValidTiers contains all valid tier values.
var ValidTiers = []string{
	TierCore,
	TierMajor,
	TierMinor,
	TierDecorative,
}

// IsValidTier checks if the given tier is a valid tier classification.
// Empty string is considered valid (the store applies the TierMinor default).
func IsValidTier(tier string) bool {
	if tier == "" {
		return true
	}

	for _, valid := range ValidTiers {
		if tier == valid {
			return true
		}
	}
	return false
}
