// Package tier maps subscription tiers to feature entitlements.
// Tiers arrive as opaque labels from the billing system; this table is the
// only place that interprets them.
package tier

import "strings"

// Feature identifies a gated capability.
type Feature string

const (
	FeatureRemediation       Feature = "remediation" // baseline, required by every strategy
	FeatureMultiCloud        Feature = "multi_cloud" // Azure + GCP strategies
	FeatureSaaSConnectors    Feature = "saas_connectors"
	FeatureLicenseConnectors Feature = "license_connectors"
)

// featureTable maps a tier label to its enabled features. Unknown tiers get
// nothing; the free tier gets nothing.
var featureTable = map[string][]Feature{
	"standard":   {FeatureRemediation},
	"pro":        {FeatureRemediation, FeatureMultiCloud},
	"enterprise": {FeatureRemediation, FeatureMultiCloud, FeatureSaaSConnectors, FeatureLicenseConnectors},
}

// IsFeatureEnabled reports whether the given tier includes the feature.
// Tier labels are matched case-insensitively.
func IsFeatureEnabled(tier string, feature Feature) bool {
	features, ok := featureTable[strings.ToLower(tier)]
	if !ok {
		return false
	}
	for _, f := range features {
		if f == feature {
			return true
		}
	}
	return false
}
