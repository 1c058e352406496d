package policy

import "time"

// Lifecycle policy constants. Vars rather than consts so deployments with
// different legal requirements can override them at wiring time; the engine
// itself takes them as configuration.
var (
	// FreezeWindow is the mandatory waiting period between freeze and mint.
	FreezeWindow = 7 * 24 * time.Hour

	// RetentionPeriod is how long a record must be retained before it becomes
	// purge-eligible. 2555 days ≈ 7 years.
	RetentionPeriod = 2555 * 24 * time.Hour

	// TrustAdequateThreshold is the minimum trust score the verification pass
	// treats as adequate.
	TrustAdequateThreshold = 40.0

	// TrustFullThreshold is the minimum trust score required for a full
	// compliance classification.
	TrustFullThreshold = 80.0

	// VerificationTimeout bounds the aggregate of the three verification
	// checks; unfinished checks count as failed.
	VerificationTimeout = 5 * time.Second

	// ClassificationCacheTTL bounds how long a cached compliance level may be
	// served before a fresh pass is required.
	ClassificationCacheTTL = 5 * time.Minute
)
