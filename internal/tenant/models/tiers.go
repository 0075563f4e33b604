package models

// tierFeatures is the subscription catalog. Add-ons purchased on top of a
// tier are stored separately and unioned in by EnabledFeaturesFor.
var tierFeatures = map[Tier]FeatureSet{
	TierBasic:    NewFeatureSet(FeatureSIS),
	TierStandard: NewFeatureSet(FeatureSIS, FeatureAcademics, FeatureLibrary),
	TierPremium: NewFeatureSet(FeatureSIS, FeatureAcademics, FeatureLibrary,
		FeatureFinance, FeatureBulkImport, FeatureMessaging),
}

func (t Tier) IsValid() bool {
	_, ok := tierFeatures[t]
	return ok
}

// TierFeatures returns the features bundled with tier (empty for unknown tiers).
func TierFeatures(t Tier) FeatureSet {
	return tierFeatures[t]
}

// EnabledFeaturesFor computes a tenant's enabled set from its tier and add-ons.
// Unknown add-ons are ignored.
func EnabledFeaturesFor(t Tier, addOns []Feature) FeatureSet {
	known := make([]Feature, 0, len(addOns))
	for _, f := range addOns {
		if f.IsKnown() {
			known = append(known, f)
		}
	}
	return TierFeatures(t).Union(NewFeatureSet(known...))
}
