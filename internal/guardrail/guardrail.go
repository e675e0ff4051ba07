// Package guardrail implements the kill-switch and spend guards that gate
// every execution attempt. Guards run before policy evaluation and before any
// strategy work; a trip aborts the attempt with no side effects.
package guardrail

import (
	"errors"
	"fmt"

	"github.com/costguard-framework/costguard/internal/core"
)

// ErrKillSwitchTriggered is returned when remediation is paused for the
// workspace. Execution must record the attempt as failed and stop.
var ErrKillSwitchTriggered = errors.New("remediation kill switch triggered")

// GuardViolation represents a tripped guardrail other than the kill switch.
type GuardViolation struct {
	Guard  string
	Reason string
}

func (gv *GuardViolation) Error() string {
	return fmt.Sprintf("guardrail violation [%s]: %s", gv.Guard, gv.Reason)
}

// IsGuardViolation checks if an error is a guardrail violation.
func IsGuardViolation(err error) bool {
	var gv *GuardViolation
	return errors.As(err, &gv)
}

// Checker evaluates workspace guardrails. Settings are read fresh by the
// caller per attempt; the checker itself holds no state.
type Checker struct{}

// NewChecker creates a guardrail checker.
func NewChecker() *Checker {
	return &Checker{}
}

// CheckAll runs every guard against the workspace settings and the proposed
// monthly savings of the attempt. The kill switch is checked first.
func (c *Checker) CheckAll(settings core.WorkspaceSettings, proposedSavings float64) error {
	if settings.RemediationPaused {
		return ErrKillSwitchTriggered
	}
	if err := c.CheckSpend(settings, proposedSavings); err != nil {
		return err
	}
	return nil
}

// CheckSpend verifies the proposed savings stay under the workspace ceiling.
// A zero ceiling disables the guard.
func (c *Checker) CheckSpend(settings core.WorkspaceSettings, proposedSavings float64) error {
	if settings.MaxMonthlySavings <= 0 {
		return nil
	}
	if proposedSavings > settings.MaxMonthlySavings {
		return &GuardViolation{
			Guard: "max_monthly_savings",
			Reason: fmt.Sprintf("proposed savings %.2f exceeds workspace ceiling %.2f",
				proposedSavings, settings.MaxMonthlySavings),
		}
	}
	return nil
}
