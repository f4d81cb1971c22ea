package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
)

const featureRawLocation = "file:///raw/feature-item.bin"

type lifecycleFeature struct {
	item *Item
	tr   Transition
	err  error
}

func (f *lifecycleFeature) reset(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
	f.item = nil
	f.tr = Transition{}
	f.err = nil
	return ctx, nil
}

func (f *lifecycleFeature) anItemInStatus(status string) error {
	return f.aKindItemInStatus(string(ItemKindPDF), status)
}

func (f *lifecycleFeature) aKindItemInStatus(kind, status string) error {
	k, err := ParseItemKind(kind)
	if err != nil {
		return err
	}
	f.item = NewItem("feature-item", "feature-scope", k, featureRawLocation)
	f.item.Status = ItemStatus(status)
	if f.item.Status.InFlight() {
		f.item.ProcessedLocation = "file:///processed/feature-item.txt"
	}
	return nil
}

func (f *lifecycleFeature) eventApplied(event string) error {
	return f.eventAppliedWithMessage(event, "")
}

func (f *lifecycleFeature) eventAppliedWithMessage(event, message string) error {
	f.tr, f.err = f.item.Apply(LifecycleEvent(event), message)
	return nil
}

func (f *lifecycleFeature) itemStatusIs(status string) error {
	if f.err != nil {
		return fmt.Errorf("unexpected transition error: %w", f.err)
	}
	if f.item.Status != ItemStatus(status) {
		return fmt.Errorf("expected status %s, got %s", status, f.item.Status)
	}
	return nil
}

func (f *lifecycleFeature) itemIsActive() error {
	if !f.item.IsActive {
		return errors.New("expected item to be active")
	}
	return nil
}

func (f *lifecycleFeature) itemIsNotEmbedded() error {
	if f.item.Embedded {
		return errors.New("expected item to carry the not-embedded marker")
	}
	return nil
}

func (f *lifecycleFeature) errorMessageIs(message string) error {
	if f.item.ErrorMessage != message {
		return fmt.Errorf("expected error message %q, got %q", message, f.item.ErrorMessage)
	}
	return nil
}

func (f *lifecycleFeature) cleanupWasRequired() error {
	if !f.tr.Effects.Cleanup {
		return errors.New("expected cleanup effect")
	}
	if f.item.ProcessedLocation != "" {
		return errors.New("expected processed location to be cleared")
	}
	return nil
}

func (f *lifecycleFeature) rawLocationUnchanged() error {
	if f.item.RawLocation != featureRawLocation {
		return fmt.Errorf("raw location changed to %q", f.item.RawLocation)
	}
	return nil
}

func (f *lifecycleFeature) transitionIs(outcome string) error {
	switch outcome {
	case "accepted":
		if f.err != nil {
			return fmt.Errorf("expected accepted, got %w", f.err)
		}
	case "rejected":
		if !errors.Is(f.err, ErrIllegalTransition) {
			return fmt.Errorf("expected ErrIllegalTransition, got %v", f.err)
		}
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	return nil
}

func initializeLifecycleScenario(sc *godog.ScenarioContext) {
	f := &lifecycleFeature{}

	sc.Before(f.reset)

	sc.Step(`^an item in status "([^"]*)"$`, f.anItemInStatus)
	sc.Step(`^a "([^"]*)" item in status "([^"]*)"$`, f.aKindItemInStatus)
	sc.Step(`^the "([^"]*)" event is applied$`, f.eventApplied)
	sc.Step(`^the "([^"]*)" event is applied with message "([^"]*)"$`, f.eventAppliedWithMessage)
	sc.Step(`^the item status is "([^"]*)"$`, f.itemStatusIs)
	sc.Step(`^the item is active$`, f.itemIsActive)
	sc.Step(`^the item is not embedded$`, f.itemIsNotEmbedded)
	sc.Step(`^the error message is "([^"]*)"$`, f.errorMessageIs)
	sc.Step(`^cleanup was required$`, f.cleanupWasRequired)
	sc.Step(`^the raw location is unchanged$`, f.rawLocationUnchanged)
	sc.Step(`^the transition is "([^"]*)"$`, f.transitionIs)
}

func TestLifecycleFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "lifecycle",
		ScenarioInitializer: initializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run lifecycle feature tests")
	}
}
