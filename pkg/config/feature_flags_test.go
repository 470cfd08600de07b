package config

import "testing"

func TestFeatureFlagDefaults(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	if IsSQ8DefaultEnabled() {
		t.Error("sq8 default should start disabled")
	}
	if !IsTrigramPrefilterEnabled() {
		t.Error("trigram prefilter should start enabled")
	}
	if !IsParallelPlannerEnabled() {
		t.Error("parallel planner should start enabled")
	}
}

func TestSQ8DefaultEnableDisable(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	EnableSQ8Default()
	if !IsSQ8DefaultEnabled() {
		t.Error("sq8 default should be enabled")
	}

	DisableSQ8Default()
	if IsSQ8DefaultEnabled() {
		t.Error("sq8 default should be disabled")
	}
}

func TestWithSQ8DefaultEnabledRestoresPrevious(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	DisableSQ8Default()
	WithSQ8DefaultEnabled(func() {
		if !IsSQ8DefaultEnabled() {
			t.Error("sq8 default should be forced on inside the callback")
		}
	})
	if IsSQ8DefaultEnabled() {
		t.Error("sq8 default should be restored to disabled after the callback")
	}
}

func TestTrigramPrefilterEnableDisable(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	DisableTrigramPrefilter()
	if IsTrigramPrefilterEnabled() {
		t.Error("trigram prefilter should be disabled")
	}

	EnableTrigramPrefilter()
	if !IsTrigramPrefilterEnabled() {
		t.Error("trigram prefilter should be enabled")
	}
}

func TestWithTrigramPrefilterDisabledRestoresPrevious(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	WithTrigramPrefilterDisabled(func() {
		if IsTrigramPrefilterEnabled() {
			t.Error("trigram prefilter should be forced off inside the callback")
		}
	})
	if !IsTrigramPrefilterEnabled() {
		t.Error("trigram prefilter should be restored to enabled after the callback")
	}
}

func TestParallelPlannerEnableDisable(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	DisableParallelPlanner()
	if IsParallelPlannerEnabled() {
		t.Error("parallel planner should be disabled")
	}

	EnableParallelPlanner()
	if !IsParallelPlannerEnabled() {
		t.Error("parallel planner should be enabled")
	}
}

func TestApplyFeaturesConfigSeedsFlags(t *testing.T) {
	ResetFeatureFlags()
	defer ResetFeatureFlags()

	ApplyFeaturesConfig(FeaturesConfig{
		SQ8Default:       true,
		TrigramPrefilter: false,
		ParallelPlanner:  false,
	})

	if !IsSQ8DefaultEnabled() {
		t.Error("sq8 default should follow the applied config")
	}
	if IsTrigramPrefilterEnabled() {
		t.Error("trigram prefilter should follow the applied config")
	}
	if IsParallelPlannerEnabled() {
		t.Error("parallel planner should follow the applied config")
	}
}
