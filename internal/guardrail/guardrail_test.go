package guardrail

import (
	"errors"
	"testing"

	"github.com/costguard-framework/costguard/internal/core"
)

func TestKillSwitch(t *testing.T) {
	c := NewChecker()

	settings := core.DefaultWorkspaceSettings()
	settings.RemediationPaused = true

	err := c.CheckAll(settings, 10.0)
	if !errors.Is(err, ErrKillSwitchTriggered) {
		t.Fatalf("expected ErrKillSwitchTriggered, got %v", err)
	}
}

func TestSpendGuard(t *testing.T) {
	c := NewChecker()

	settings := core.DefaultWorkspaceSettings()
	settings.MaxMonthlySavings = 100.0

	if err := c.CheckAll(settings, 50.0); err != nil {
		t.Fatalf("under-ceiling savings should pass: %v", err)
	}

	err := c.CheckAll(settings, 150.0)
	if err == nil {
		t.Fatal("expected spend guard violation")
	}
	if !IsGuardViolation(err) {
		t.Fatalf("expected GuardViolation, got %T", err)
	}
}

func TestZeroCeilingDisablesSpendGuard(t *testing.T) {
	c := NewChecker()

	settings := core.DefaultWorkspaceSettings()
	settings.MaxMonthlySavings = 0

	if err := c.CheckAll(settings, 1e9); err != nil {
		t.Fatalf("zero ceiling should disable spend guard: %v", err)
	}
}

func TestKillSwitchPrecedesSpendGuard(t *testing.T) {
	c := NewChecker()

	settings := core.DefaultWorkspaceSettings()
	settings.RemediationPaused = true
	settings.MaxMonthlySavings = 1.0

	err := c.CheckAll(settings, 100.0)
	if !errors.Is(err, ErrKillSwitchTriggered) {
		t.Fatalf("kill switch must win over spend guard, got %v", err)
	}
}
