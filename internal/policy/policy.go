// Package policy implements the deterministic remediation policy engine.
// Evaluation is a pure function over a request snapshot and a workspace
// policy config; rules run in fixed precedence order and the first match
// wins. Block beats escalate beats warn.
package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/costguard-framework/costguard/internal/core"
)

// Decision is the outcome class of a policy evaluation.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionWarn     Decision = "warn"
	DecisionBlock    Decision = "block"
	DecisionEscalate Decision = "escalate"
)

// Rule ids are stable machine-readable identifiers recorded in audit events.
const (
	RuleProtectProductionDestructive = "protect-production-destructive"
	RuleGPURequiresOverride          = "gpu-change-requires-explicit-override"
	RuleLowConfidence                = "low-confidence-remediation"
	RuleInvalidConfidence            = "invalid-confidence-score"
)

// NoRulesTriggered is the summary used when evaluation produced no hits.
const NoRulesTriggered = "no rules triggered"

// RuleHit records a single matched rule with its evidence.
type RuleHit struct {
	RuleID   string            `json:"rule_id"`
	Decision Decision          `json:"decision"`
	Message  string            `json:"message"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// Evaluation is the result of running the engine over a request snapshot.
type Evaluation struct {
	Decision Decision  `json:"decision"`
	Hits     []RuleHit `json:"hits,omitempty"`
}

// Summary returns the first hit's message, or NoRulesTriggered.
func (e Evaluation) Summary() string {
	if len(e.Hits) == 0 {
		return NoRulesTriggered
	}
	return e.Hits[0].Message
}

// destructiveActions is the fixed terminate/delete-class action set.
var destructiveActions = map[core.Action]bool{
	core.ActionTerminateInstance: true,
	core.ActionDeleteVolume:      true,
	core.ActionDeleteSnapshot:    true,
	core.ActionDeleteNATGateway:  true,
	core.ActionDeleteLoadBalancer: true,
	core.ActionDeleteRDSInstance: true,
	core.ActionDeleteS3Bucket:    true,
	core.ActionDeleteECRImage:    true,
	core.ActionDeleteRedshift:    true,
	core.ActionDeleteSageMaker:   true,
}

// gpuSensitiveActions covers instance stop/terminate/resize across providers
// plus managed-inference-endpoint deletion.
var gpuSensitiveActions = map[core.Action]bool{
	core.ActionStopInstance:      true,
	core.ActionTerminateInstance: true,
	core.ActionResizeInstance:    true,
	core.ActionDeallocateVM:      true,
	core.ActionResizeVM:          true,
	core.ActionStopGCPInstance:   true,
	core.ActionResizeGCPInstance: true,
	core.ActionDeleteSageMaker:   true,
}

var (
	productionMarkers    = []string{"prod", "production", "live"}
	nonProductionMarkers = []string{"dev", "development", "staging", "stage", "sandbox", "test", "qa"}

	// Free-text fallback markers. Substring matching over resource id, type
	// and explainability text; known to over- and under-trigger, kept for
	// behavioral parity with the upstream heuristic.
	freeTextProductionMarkers = []string{"prod", "production", "critical", "pci", "hipaa"}

	// Markers a reviewer can place in notes to satisfy the GPU override rule.
	gpuOverrideMarkers = []string{"gpu-approved", "gpu approved", "gpu_override", "override-approved"}

	gpuWordPattern = regexp.MustCompile(`(?i)\bgpu\b`)
)

// OverrideMarker is appended to review notes when an escalated request is
// approved by the escalation role.
const OverrideMarker = "gpu-approved"

// Evaluate runs the policy rules over a request snapshot. forceProduction
// short-circuits production-likeness with highest priority; callers that have
// no out-of-band signal pass false.
func Evaluate(req *core.RemediationRequest, cfg core.PolicyConfig, forceProduction bool) Evaluation {
	if !cfg.Enabled {
		return Evaluation{Decision: DecisionAllow}
	}

	if hit, ok := evalBlock(req, cfg, forceProduction); ok {
		return Evaluation{Decision: DecisionBlock, Hits: []RuleHit{hit}}
	}
	if hit, ok := evalEscalate(req, cfg); ok {
		return Evaluation{Decision: DecisionEscalate, Hits: []RuleHit{hit}}
	}
	if hit, ok := evalConfidence(req, cfg); ok {
		return Evaluation{Decision: DecisionWarn, Hits: []RuleHit{hit}}
	}
	return Evaluation{Decision: DecisionAllow}
}

func evalBlock(req *core.RemediationRequest, cfg core.PolicyConfig, forceProduction bool) (RuleHit, bool) {
	if !cfg.BlockProductionDestructive {
		return RuleHit{}, false
	}
	if !destructiveActions[req.Action] {
		return RuleHit{}, false
	}
	if !isProductionLike(req, forceProduction) {
		return RuleHit{}, false
	}
	return RuleHit{
		RuleID:   RuleProtectProductionDestructive,
		Decision: DecisionBlock,
		Message: fmt.Sprintf("destructive action %s blocked: resource %s looks production",
			req.Action, req.ResourceID),
		Evidence: evidence(req),
	}, true
}

func evalEscalate(req *core.RemediationRequest, cfg core.PolicyConfig) (RuleHit, bool) {
	if !cfg.RequireGPUOverride {
		return RuleHit{}, false
	}
	if !gpuSensitiveActions[req.Action] {
		return RuleHit{}, false
	}
	if !gpuWordPattern.MatchString(freeText(req)) {
		return RuleHit{}, false
	}
	if hasOverrideMarker(req.ReviewNotes) {
		return RuleHit{}, false
	}
	return RuleHit{
		RuleID:   RuleGPURequiresOverride,
		Decision: DecisionEscalate,
		Message: fmt.Sprintf("action %s targets a GPU resource and requires an explicit override approval",
			req.Action),
		Evidence: evidence(req),
	}, true
}

func evalConfidence(req *core.RemediationRequest, cfg core.PolicyConfig) (RuleHit, bool) {
	if req.ConfidenceScore == "" {
		return RuleHit{}, false
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(req.ConfidenceScore), 64)
	if err != nil {
		ev := evidence(req)
		ev["confidence_score"] = req.ConfidenceScore
		return RuleHit{
			RuleID:   RuleInvalidConfidence,
			Decision: DecisionWarn,
			Message:  "confidence score is not a valid decimal",
			Evidence: ev,
		}, true
	}

	threshold := cfg.LowConfidenceWarnThreshold
	if threshold == 0 {
		threshold = 0.90
	}

	if score < threshold {
		ev := evidence(req)
		ev["confidence_score"] = strconv.FormatFloat(score, 'f', -1, 64)
		ev["threshold"] = strconv.FormatFloat(threshold, 'f', -1, 64)
		return RuleHit{
			RuleID:   RuleLowConfidence,
			Decision: DecisionWarn,
			Message: fmt.Sprintf("confidence %.2f is below the warn threshold %.2f",
				score, threshold),
			Evidence: ev,
		}, true
	}
	return RuleHit{}, false
}

// IsDestructive reports whether the request's action belongs to the fixed
// terminate/delete-class set.
func IsDestructive(req *core.RemediationRequest) bool {
	return destructiveActions[req.Action]
}

// IsProductionLike reports whether the target resolves as production via the
// trusted context or the free-text heuristic. Used by authorization checks
// that gate approval requirements independent of a full evaluation.
func IsProductionLike(req *core.RemediationRequest) bool {
	return isProductionLike(req, false)
}

func isProductionLike(req *core.RemediationRequest, forceProduction bool) bool {
	if forceProduction {
		return true
	}
	if req.PolicyContext.IsProduction != nil {
		return *req.PolicyContext.IsProduction
	}
	if env := strings.ToLower(strings.TrimSpace(req.PolicyContext.Environment)); env != "" {
		for _, m := range productionMarkers {
			if env == m {
				return true
			}
		}
		for _, m := range nonProductionMarkers {
			if env == m {
				return false
			}
		}
		// Unknown environment label falls through to the heuristic.
	}
	text := strings.ToLower(freeText(req))
	for _, m := range freeTextProductionMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func hasOverrideMarker(notes string) bool {
	lower := strings.ToLower(notes)
	for _, m := range gpuOverrideMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// freeText is the combined text the heuristics match against.
func freeText(req *core.RemediationRequest) string {
	return req.ResourceID + " " + req.ResourceType + " " + req.Explainability
}

// evidence builds the base evidence map for a rule hit. Never includes
// credentials or user-supplied action parameters.
func evidence(req *core.RemediationRequest) map[string]string {
	ev := map[string]string{
		"request_uuid":  req.UUID,
		"workspace":     req.WorkspaceUUID,
		"resource_id":   req.ResourceID,
		"resource_type": req.ResourceType,
		"action":        string(req.Action),
		"requested_by":  req.RequestedBy,
	}
	if req.ReviewedBy != "" {
		ev["reviewed_by"] = req.ReviewedBy
	}
	if req.PolicyContext.Source != "" {
		ev["context_source"] = req.PolicyContext.Source
	}
	if req.PolicyContext.Criticality != "" {
		ev["context_criticality"] = req.PolicyContext.Criticality
	}
	if req.PolicyContext.Environment != "" {
		ev["context_environment"] = req.PolicyContext.Environment
	}
	return ev
}
