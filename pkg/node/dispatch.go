package node

import (
	"fmt"

	"github.com/christophe-duc/fleetctl/pkg/fleeterr"
	fpty "github.com/christophe-duc/fleetctl/pkg/pty"
)

// isPerHostKind reports whether kind is any of the three per-host
// flavors that need isolation expansion before dispatch.
func isPerHostKind(k Kind) bool {
	return k == PerHost || k == PerHostArray || k == PerHostOne
}

// Dispatch runs the named action on e via a five-step dispatch flow:
// isolation expansion, the empty-set check, single-isolation execution,
// the isolate-one-only prompt, and parallel fan-out, wrapped in the
// per-isolation Retry/Skip/Abort error handling loop.
func (e *Env) Dispatch(name string) ([]interface{}, error) {
	entry, err := e.action(name)
	if err != nil {
		return nil, err
	}

	// Step 1: expand to isolations if needed.
	isolations := []*Env{e}
	if isPerHostKind(e.spec.Kind) && !e.isIsolated && !entry.opts.DontIsolateYet {
		isolations, err = iterIsolations(e)
		if err != nil {
			return nil, err
		}
	}

	// Step 2: nothing to do.
	if len(isolations) == 0 {
		e.console.Warning(fmt.Sprintf("nothing to do for action %q on %s: no hosts", name, e.Path()))
		return nil, nil
	}

	// Step 3: single isolation runs in-place.
	if len(isolations) == 1 {
		result, err := runIsolationWithRecovery(isolations[0], name, entry)
		if err != nil {
			return nil, err
		}
		return []interface{}{result}, nil
	}

	// Step 4: isolate_one_only prompts the operator to pick exactly one.
	if entry.opts.IsolateOneOnly {
		chosen, err := chooseOne(e, isolations)
		if err != nil {
			return nil, err
		}
		result, err := runIsolationWithRecovery(chosen, name, entry)
		if err != nil {
			return nil, err
		}
		return []interface{}{result}, nil
	}

	// Step 5: fan out, one auxiliary pty per isolation, in input order. A
	// pty that doesn't already advertise auxiliary ptys (the common case:
	// a plain Local or SSH-backed pty) is wrapped on demand so fan-out
	// still happens concurrently instead of degrading to sequential.
	fanoutPty := e.pty
	if !fanoutPty.AuxiliaryPtysAvailable() {
		fanoutPty = fpty.NewParallel(fanoutPty)
	}
	return dispatchParallel(fanoutPty, isolations, name, entry)
}

func chooseOne(e *Env, isolations []*Env) (*Env, error) {
	labels := make([]string, len(isolations))
	for i, iso := range isolations {
		labels[i] = iso.isolation.String()
	}
	picked, err := e.console.Choice("Pick one host to run against", labels, 0, true)
	if err != nil {
		return nil, err
	}
	for i, label := range labels {
		if label == picked {
			return isolations[i], nil
		}
	}
	return isolations[0], nil
}

// dispatchParallel runs entry against every isolation via
// Pty.RunInAuxiliaryPtys, collecting results in isolation order. If any
// fork raised, the first such error is returned only after every fork has
// joined step 5.
func dispatchParallel(p fpty.Pty, isolations []*Env, name string, entry actionEntry) ([]interface{}, error) {
	callbacks := make([]func(fpty.Pty) (interface{}, error), len(isolations))
	for i, iso := range isolations {
		iso := iso
		callbacks[i] = func(auxPty fpty.Pty) (interface{}, error) {
			forked := *iso
			forked.pty = auxPty
			return runIsolationWithRecovery(&forked, name, entry)
		}
	}

	fork := p.RunInAuxiliaryPtys(callbacks)
	fork.Join()
	if err := fork.Err(); err != nil {
		return nil, err
	}
	return fork.Result, nil
}

// retryChoice mirrors the operator's answer to the Retry/Skip/Abort
// prompt; Abort is the default when the pty is non-interactive.
type retryChoice int

const (
	retryChoiceRetry retryChoice = iota
	retryChoiceSkip
	retryChoiceAbort
)

// runIsolationWithRecovery wraps entry.fn in the per-isolation
// Retry/Skip/Abort loop: a failed command is retried automatically (up
// to iso.maxAutoRetries times, without touching the console) before
// either prompting the operator to retry/skip/abort (interactive pty) or
// giving up outright (non-interactive pty, e.g. headless dispatch).
func runIsolationWithRecovery(iso *Env, actionName string, entry actionEntry) (result interface{}, err error) {
	label := iso.Path()
	if iso.isIsolated {
		label = iso.isolation.String()
	}

	autoRetries := 0
	for {
		result, err = callAction(entry.fn, iso)
		if err == nil {
			return result, nil
		}

		var cmdFailed *fleeterr.CommandFailed
		if asCommandFailed(err, &cmdFailed) {
			if autoRetries < iso.maxAutoRetries {
				autoRetries++
				continue
			}
			if iso.pty.Interactive() {
				switch promptRetrySkipAbort(iso, label, cmdFailed) {
				case retryChoiceRetry:
					autoRetries = 0
					continue
				case retryChoiceSkip:
					return &fleeterr.SkippedResult{IsolationLabel: label}, nil
				default:
					return nil, fleeterr.NewActionException(label, err)
				}
			}
		}

		iso.logger.LogException(err)
		return nil, fleeterr.NewActionException(label, err)
	}
}

// callAction recovers a panic inside an action body and turns it into an
// error, since an action can panic instead of returning an error for
// genuinely unexpected failures.
func callAction(fn ActionFunc, iso *Env) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in action: %v", r)
		}
	}()
	return fn(iso)
}

func asCommandFailed(err error, target **fleeterr.CommandFailed) bool {
	if cf, ok := err.(*fleeterr.CommandFailed); ok {
		*target = cf
		return true
	}
	return false
}

// promptRetrySkipAbort implements the failure prompt, default
// Abort.
func promptRetrySkipAbort(iso *Env, label string, cause *fleeterr.CommandFailed) retryChoice {
	choice, err := iso.console.Choice(
		fmt.Sprintf("command failed on %s: %v — Retry/Skip/Abort?", label, cause),
		[]string{"Retry", "Skip", "Abort"},
		2,
		false,
	)
	if err != nil {
		return retryChoiceAbort
	}
	switch choice {
	case "Retry":
		return retryChoiceRetry
	case "Skip":
		return retryChoiceSkip
	default:
		return retryChoiceAbort
	}
}
