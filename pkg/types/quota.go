package types

// Quality is the output quality tier a plan allows.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// UnlimitedQuota marks a plan limit column as unbounded.
const UnlimitedQuota = -1
