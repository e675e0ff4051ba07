package policy

import (
	"testing"

	"github.com/costguard-framework/costguard/internal/core"
)

func baseRequest() *core.RemediationRequest {
	return &core.RemediationRequest{
		UUID:          "req-1",
		WorkspaceUUID: "ws-1",
		ResourceID:    "i-0123456789abcdef0",
		ResourceType:  "ec2_instance",
		Provider:      core.ProviderAWS,
		Action:        core.ActionStopInstance,
		RequestedBy:   "user-1",
	}
}

func boolPtr(b bool) *bool { return &b }

func TestDisabledEngineAllowsEverything(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionTerminateInstance
	req.ResourceID = "prod-db-main"

	cfg := core.DefaultPolicyConfig()
	cfg.Enabled = false

	eval := Evaluate(req, cfg, false)
	if eval.Decision != DecisionAllow {
		t.Fatalf("disabled engine must allow, got %s", eval.Decision)
	}
	if eval.Summary() != NoRulesTriggered {
		t.Errorf("unexpected summary %q", eval.Summary())
	}
}

func TestBlockProductionDestructive(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*core.RemediationRequest)
		want Decision
	}{
		{
			"trusted context is_production",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionTerminateInstance
				r.PolicyContext.IsProduction = boolPtr(true)
			},
			DecisionBlock,
		},
		{
			"trusted context environment marker",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionDeleteVolume
				r.PolicyContext.Environment = "Production"
			},
			DecisionBlock,
		},
		{
			"non-production environment clears the rule",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionDeleteVolume
				r.PolicyContext.Environment = "staging"
				r.ResourceID = "vol-prod-data" // heuristic would fire, env wins
			},
			DecisionAllow,
		},
		{
			"free-text heuristic on resource id",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionTerminateInstance
				r.ResourceID = "prod-web-01"
			},
			DecisionBlock,
		},
		{
			"free-text heuristic on compliance marker",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionDeleteS3Bucket
				r.Explainability = "bucket stores pci scoped exports"
			},
			DecisionBlock,
		},
		{
			"non-destructive action never blocks",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionStopInstance
				r.PolicyContext.IsProduction = boolPtr(true)
			},
			DecisionAllow,
		},
		{
			"trusted context overrides heuristic",
			func(r *core.RemediationRequest) {
				r.Action = core.ActionTerminateInstance
				r.ResourceID = "prod-like-name"
				r.PolicyContext.IsProduction = boolPtr(false)
			},
			DecisionAllow,
		},
	}

	cfg := core.DefaultPolicyConfig()
	cfg.RequireGPUOverride = false

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mut(req)
			eval := Evaluate(req, cfg, false)
			if eval.Decision != tt.want {
				t.Fatalf("decision = %s, want %s (hits: %+v)", eval.Decision, tt.want, eval.Hits)
			}
			if tt.want == DecisionBlock {
				if eval.Hits[0].RuleID != RuleProtectProductionDestructive {
					t.Errorf("rule id = %s", eval.Hits[0].RuleID)
				}
			}
		})
	}
}

func TestForceProductionShortCircuit(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionTerminateInstance
	req.PolicyContext.IsProduction = boolPtr(false) // force flag must win

	eval := Evaluate(req, core.DefaultPolicyConfig(), true)
	if eval.Decision != DecisionBlock {
		t.Fatalf("force-production must block destructive action, got %s", eval.Decision)
	}
}

func TestBlockDisabledByConfig(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionTerminateInstance
	req.PolicyContext.IsProduction = boolPtr(true)

	cfg := core.DefaultPolicyConfig()
	cfg.BlockProductionDestructive = false

	eval := Evaluate(req, cfg, false)
	if eval.Decision == DecisionBlock {
		t.Fatal("block rule must respect config flag")
	}
}

func TestGPUEscalation(t *testing.T) {
	cfg := core.DefaultPolicyConfig()

	req := baseRequest()
	req.Action = core.ActionResizeInstance
	req.ResourceType = "gpu instance p3.2xlarge"

	eval := Evaluate(req, cfg, false)
	if eval.Decision != DecisionEscalate {
		t.Fatalf("expected escalate, got %s", eval.Decision)
	}
	if eval.Hits[0].RuleID != RuleGPURequiresOverride {
		t.Errorf("rule id = %s", eval.Hits[0].RuleID)
	}

	// Word boundary: "gpus" inside another word must not match
	req2 := baseRequest()
	req2.Action = core.ActionResizeInstance
	req2.ResourceType = "highgput-instance"
	eval2 := Evaluate(req2, cfg, false)
	if eval2.Decision == DecisionEscalate {
		t.Fatal("substring without word boundary must not trigger GPU rule")
	}

	// Override marker in review notes clears the escalation
	req3 := baseRequest()
	req3.Action = core.ActionResizeInstance
	req3.ResourceType = "gpu instance p3.2xlarge"
	req3.ReviewNotes = "resize ok, gpu-approved by platform team"
	eval3 := Evaluate(req3, cfg, false)
	if eval3.Decision == DecisionEscalate {
		t.Fatalf("override marker must clear escalation, got %s", eval3.Decision)
	}
}

func TestGPUEscalationDisabledByConfig(t *testing.T) {
	cfg := core.DefaultPolicyConfig()
	cfg.RequireGPUOverride = false

	req := baseRequest()
	req.Action = core.ActionResizeInstance
	req.ResourceType = "gpu instance"

	eval := Evaluate(req, cfg, false)
	if eval.Decision == DecisionEscalate {
		t.Fatal("escalation must respect config flag")
	}
}

func TestConfidenceWarn(t *testing.T) {
	cfg := core.DefaultPolicyConfig()

	req := baseRequest()
	req.ConfidenceScore = "0.5"
	eval := Evaluate(req, cfg, false)
	if eval.Decision != DecisionWarn {
		t.Fatalf("expected warn, got %s", eval.Decision)
	}
	if eval.Hits[0].RuleID != RuleLowConfidence {
		t.Errorf("rule id = %s", eval.Hits[0].RuleID)
	}
	if eval.Hits[0].Evidence["threshold"] != "0.9" {
		t.Errorf("threshold evidence = %q", eval.Hits[0].Evidence["threshold"])
	}

	req.ConfidenceScore = "0.95"
	eval = Evaluate(req, cfg, false)
	if eval.Decision != DecisionAllow {
		t.Fatalf("high confidence should allow, got %s", eval.Decision)
	}

	req.ConfidenceScore = "not-a-number"
	eval = Evaluate(req, cfg, false)
	if eval.Decision != DecisionWarn || eval.Hits[0].RuleID != RuleInvalidConfidence {
		t.Fatalf("invalid confidence should warn with %s, got %+v", RuleInvalidConfidence, eval)
	}

	req.ConfidenceScore = ""
	eval = Evaluate(req, cfg, false)
	if eval.Decision != DecisionAllow {
		t.Fatalf("absent confidence should allow, got %s", eval.Decision)
	}
}

func TestPrecedenceBlockOverWarn(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionTerminateInstance
	req.ResourceID = "prod-web-01"
	req.ConfidenceScore = "0.1" // warn rule would also match

	eval := Evaluate(req, core.DefaultPolicyConfig(), false)
	if eval.Decision != DecisionBlock {
		t.Fatalf("block must dominate warn, got %s", eval.Decision)
	}
	if len(eval.Hits) != 1 || eval.Hits[0].RuleID != RuleProtectProductionDestructive {
		t.Fatalf("expected single block hit, got %+v", eval.Hits)
	}
}

func TestPrecedenceEscalateOverWarn(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionResizeInstance
	req.ResourceType = "gpu node"
	req.ConfidenceScore = "0.1"

	eval := Evaluate(req, core.DefaultPolicyConfig(), false)
	if eval.Decision != DecisionEscalate {
		t.Fatalf("escalate must dominate warn, got %s", eval.Decision)
	}
}

func TestBlockRegardlessOfConfidence(t *testing.T) {
	// Destructive + trusted production context blocks for any confidence value.
	for _, score := range []string{"", "0.1", "0.99", "garbage"} {
		req := baseRequest()
		req.Action = core.ActionDeleteRDSInstance
		req.PolicyContext.IsProduction = boolPtr(true)
		req.ConfidenceScore = score

		eval := Evaluate(req, core.DefaultPolicyConfig(), false)
		if eval.Decision != DecisionBlock {
			t.Fatalf("confidence %q: expected block, got %s", score, eval.Decision)
		}
	}
}

func TestPredicates(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionDeleteVolume
	if !IsDestructive(req) {
		t.Error("delete_volume is destructive")
	}
	req.Action = core.ActionStopInstance
	if IsDestructive(req) {
		t.Error("stop_instance is not destructive")
	}

	req.ResourceID = "prod-cache"
	if !IsProductionLike(req) {
		t.Error("prod- prefix should look production")
	}
	req.ResourceID = "dev-cache"
	req.ResourceType = ""
	req.Explainability = ""
	if IsProductionLike(req) {
		t.Error("dev resource should not look production")
	}
}

func TestEvidenceNeverContainsParams(t *testing.T) {
	req := baseRequest()
	req.Action = core.ActionTerminateInstance
	req.ResourceID = "prod-api"
	req.ActionParams = map[string]string{"api_token": "super-secret"}

	eval := Evaluate(req, core.DefaultPolicyConfig(), false)
	for _, hit := range eval.Hits {
		for k, v := range hit.Evidence {
			if v == "super-secret" {
				t.Fatalf("evidence leaked action param under key %s", k)
			}
		}
	}
}
