// Package console implements the operator-facing input oracle: prompting
// for input, confirmation, multiple choice, warnings, and a throttled
// progress bar, backed by manifoldco/promptui.
package console

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	throttle "github.com/boz/go-throttle"
	"github.com/manifoldco/promptui"
)

// Console is the input oracle every interactive action dispatch decision
// goes through.
type Console interface {
	Input(prompt string, isPassword bool, defaultValue string) (string, error)
	Confirm(question string, defaultValue bool) (bool, error)
	Choice(prompt string, options []string, defaultIndex int, allowRandom bool) (string, error)
	Warning(text string)
	ProgressBarWithSteps(label string, steps int) ProgressBar
}

// ProgressBar is a scoped progress indicator; Step advances it by one and
// Done closes it out.
type ProgressBar interface {
	Step(note string)
	Done()
}

// Terminal is the promptui-backed Console used outside of tests.
type Terminal struct{}

// NewTerminal returns the default, promptui-backed Console.
func NewTerminal() *Terminal { return &Terminal{} }

func (t *Terminal) Input(prompt string, isPassword bool, defaultValue string) (string, error) {
	p := promptui.Prompt{Label: prompt, Default: defaultValue}
	if isPassword {
		p.Mask = '*'
	}
	return p.Run()
}

// Confirm prompts with a y/N or Y/n suffix depending on defaultValue. An
// empty answer falls back to defaultValue; "y"/"yes" means true, anything
// else typed means false.
func (t *Terminal) Confirm(question string, defaultValue bool) (bool, error) {
	suffix := "y/N"
	if defaultValue {
		suffix = "Y/n"
	}
	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", question, suffix)}
	answer, err := p.Run()
	if err != nil {
		return false, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "" {
		return defaultValue, nil
	}
	return answer == "y" || answer == "yes", nil
}

// Choice presents options via promptui.Select. When allowRandom is true, a
// synthetic "random" entry is appended that resolves to a uniformly chosen
// option instead of prompting further — used by the dispatcher's
// isolate_one_only path when the operator doesn't care which isolation
// runs.
func (t *Terminal) Choice(prompt string, options []string, defaultIndex int, allowRandom bool) (string, error) {
	items := append([]string(nil), options...)
	const randomLabel = "(random)"
	if allowRandom {
		items = append(items, randomLabel)
	}

	sel := promptui.Select{Label: prompt, Items: items, CursorPos: defaultIndex}
	_, choice, err := sel.Run()
	if err != nil {
		return "", err
	}
	if choice == randomLabel {
		return options[rand.Intn(len(options))], nil
	}
	return choice, nil
}

func (t *Terminal) Warning(text string) {
	fmt.Println(promptui.Styler(promptui.FGYellow)("warning: " + text))
}

// throttledProgressBar renders at most once every 100ms via
// boz/go-throttle, so a fast-completing fan-out doesn't flood the
// terminal with one line per isolation.
type throttledProgressBar struct {
	label     string
	total     int
	completed int
	driver    throttle.ThrottleDriver
}

func (t *Terminal) ProgressBarWithSteps(label string, steps int) ProgressBar {
	bar := &throttledProgressBar{label: label, total: steps}
	bar.driver = throttle.ThrottleFunc(100*time.Millisecond, true, bar.draw)
	return bar
}

func (b *throttledProgressBar) Step(note string) {
	b.completed++
	b.driver.Trigger()
}

func (b *throttledProgressBar) draw() {
	fmt.Printf("\r%s: %d/%d", b.label, b.completed, b.total)
}

func (b *throttledProgressBar) Done() {
	b.driver.Trigger()
	b.driver.Stop()
	fmt.Println()
}

// Noop satisfies Console without ever blocking on input; every method
// returns its documented default immediately. Used for non-interactive
// dispatch (e.g. when stdout is not a terminal, or in tests).
type Noop struct{}

func (Noop) Input(prompt string, isPassword bool, defaultValue string) (string, error) {
	return defaultValue, nil
}
func (Noop) Confirm(question string, defaultValue bool) (bool, error) { return defaultValue, nil }
func (Noop) Choice(prompt string, options []string, defaultIndex int, allowRandom bool) (string, error) {
	if defaultIndex < 0 || defaultIndex >= len(options) {
		return "", fmt.Errorf("console: no default choice available for %q", prompt)
	}
	return options[defaultIndex], nil
}
func (Noop) Warning(text string) {}
func (Noop) ProgressBarWithSteps(label string, steps int) ProgressBar { return noopProgressBar{} }

type noopProgressBar struct{}

func (noopProgressBar) Step(note string) {}
func (noopProgressBar) Done()            {}
