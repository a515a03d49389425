package models

import (
	"testing"
	"time"
)

func TestEffectsForStage(t *testing.T) {
	tests := []struct {
		stage int
		want  BlightEffects
	}{
		{0, BlightEffects{RollMultiplier: 1.0}},
		{1, BlightEffects{RollMultiplier: 1.0}},
		{2, BlightEffects{RollMultiplier: 1.5}},
		{3, BlightEffects{RollMultiplier: 1.0, NoMonsters: true}},
		{4, BlightEffects{RollMultiplier: 1.0, NoMonsters: true, NoGathering: true}},
		{5, BlightEffects{RollMultiplier: 1.0, NoMonsters: true, NoGathering: true}},
	}

	for _, tt := range tests {
		if got := EffectsForStage(tt.stage); got != tt.want {
			t.Errorf("EffectsForStage(%d) = %+v, want %+v", tt.stage, got, tt.want)
		}
	}
}

func TestCharacterCheckInvariants(t *testing.T) {
	deadline := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name    string
		ch      Character
		wantErr bool
	}{
		{"cured", Character{}, false},
		{"mid-stage", Character{Blighted: true, BlightStage: 3}, false},
		{"terminal with deadline", Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline}, false},
		{"stage out of range", Character{Blighted: true, BlightStage: 6}, true},
		{"negative stage", Character{BlightStage: -1}, true},
		{"flag without stage", Character{Blighted: true, BlightStage: 0}, true},
		{"stage without flag", Character{Blighted: false, BlightStage: 2}, true},
		{"terminal without deadline", Character{Blighted: true, BlightStage: 5}, true},
		{"deadline below terminal", Character{Blighted: true, BlightStage: 3, DeathDeadline: &deadline}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ch.CheckInvariants()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariants() = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealingRequirementValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     HealingRequirement
		wantErr bool
	}{
		{
			"valid item requirement",
			HealingRequirement{Type: RequirementItem, Description: "Bring herbs.",
				Items: []ItemAlternative{{ItemName: "Amber", Quantity: 3}}},
			false,
		},
		{
			"valid art requirement",
			HealingRequirement{Type: RequirementArt, Description: "Paint the lake."},
			false,
		},
		{"unknown type", HealingRequirement{Type: "song", Description: "Sing."}, true},
		{"empty description", HealingRequirement{Type: RequirementWriting}, true},
		{"item without alternatives", HealingRequirement{Type: RequirementItem, Description: "Bring something."}, true},
		{
			"alternative with zero quantity",
			HealingRequirement{Type: RequirementItem, Description: "Bring herbs.",
				Items: []ItemAlternative{{ItemName: "Amber", Quantity: 0}}},
			true,
		},
		{
			"alternative without name",
			HealingRequirement{Type: RequirementItem, Description: "Bring herbs.",
				Items: []ItemAlternative{{Quantity: 2}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealingRequestExpired(t *testing.T) {
	now := time.Now()
	req := HealingRequest{ExpiresAt: now}

	if req.Expired(now.Add(-time.Second)) {
		t.Error("request should be live before ExpiresAt")
	}
	if !req.Expired(now) {
		t.Error("request expires exactly at ExpiresAt")
	}
	if !req.Expired(now.Add(time.Second)) {
		t.Error("request should be expired after ExpiresAt")
	}
}

func TestIsValidRequirementType(t *testing.T) {
	for _, rt := range []RequirementType{RequirementItem, RequirementArt, RequirementWriting} {
		if !IsValidRequirementType(rt) {
			t.Errorf("IsValidRequirementType(%q) = false", rt)
		}
	}
	if IsValidRequirementType("song") {
		t.Error("unknown requirement type should be invalid")
	}
}

func TestIsValidFulfillMethod(t *testing.T) {
	for _, m := range []FulfillMethod{FulfillItem, FulfillTokens, FulfillCreative} {
		if !IsValidFulfillMethod(m) {
			t.Errorf("IsValidFulfillMethod(%q) = false", m)
		}
	}
	if IsValidFulfillMethod("barter") {
		t.Error("unknown fulfillment method should be invalid")
	}
}
