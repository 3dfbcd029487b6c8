package cfi

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature scenarios failed")
	}
}

type scenarioState struct {
	parsed CFI
}

func initializeScenario(ctx *godog.ScenarioContext) {
	s := &scenarioState{}

	ctx.Step(`^the CFI "([^"]*)"$`, func(str string) error {
		s.parsed = Parse(str)
		return nil
	})
	ctx.Step(`^the spine position is (-?\d+)$`, func(want int) error {
		if s.parsed.SpinePos != want {
			return fmt.Errorf("SpinePos = %d, want %d", s.parsed.SpinePos, want)
		}
		return nil
	})
	ctx.Step(`^the spine id is "([^"]*)"$`, func(want string) error {
		if s.parsed.SpineID != want {
			return fmt.Errorf("SpineID = %q, want %q", s.parsed.SpineID, want)
		}
		return nil
	})
	ctx.Step(`^there are (\d+) steps$`, func(want int) error {
		if len(s.parsed.Steps) != want {
			return fmt.Errorf("len(Steps) = %d, want %d", len(s.parsed.Steps), want)
		}
		return nil
	})
	ctx.Step(`^step (\d+) is an? (element|text) step with index (\d+)$`, func(n int, kind string, index int) error {
		if n < 1 || n > len(s.parsed.Steps) {
			return fmt.Errorf("no step %d in %v", n, s.parsed.Steps)
		}
		step := s.parsed.Steps[n-1]
		if string(step.Type) != kind || step.Index != index {
			return fmt.Errorf("step %d = %+v, want %s step with index %d", n, step, kind, index)
		}
		return nil
	})
	ctx.Step(`^the character offset is (\d+)$`, func(want int) error {
		if s.parsed.CharacterOffset != want {
			return fmt.Errorf("CharacterOffset = %d, want %d", s.parsed.CharacterOffset, want)
		}
		return nil
	})
	ctx.Step(`^comparing "([^"]*)" with "([^"]*)" gives (-?\d+)$`, func(a, b, result string) error {
		want, err := strconv.Atoi(result)
		if err != nil {
			return err
		}
		if got := CompareStrings(a, b); got != want {
			return fmt.Errorf("CompareStrings(%q, %q) = %d, want %d", a, b, got, want)
		}
		return nil
	})
}
