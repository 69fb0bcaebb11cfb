package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// behaviorRegexCache caches compiled regular expressions.
var behaviorRegexCache = struct {
	sync.RWMutex
	cache map[string]*regexp.Regexp
}{
	cache: make(map[string]*regexp.Regexp),
}

// matchBehavior finds the first behavior that matches the prompt.
// Returns the matching behavior or the default behavior if no match.
func (s *Simulator) matchBehavior(prompt string) *Behavior {
	for i := range s.config.Behaviors {
		b := &s.config.Behaviors[i]
		if matches(b, prompt) {
			s.logger.Debug("behavior matched",
				"pattern", b.Match,
				"type", b.Type,
				"prompt", truncate(prompt, 50),
			)
			return b
		}
	}

	s.logger.Debug("using default behavior", "prompt", truncate(prompt, 50))
	return &s.config.Default.Behavior
}

// matches checks if a behavior pattern matches the prompt.
func matches(b *Behavior, prompt string) bool {
	matchType := b.Type
	if matchType == "" {
		matchType = "contains"
	}

	switch matchType {
	case "regex":
		return matchRegex(b.Match, prompt)
	case "contains":
		return strings.Contains(prompt, b.Match)
	default:
		return strings.Contains(prompt, b.Match)
	}
}

// matchRegex performs regex matching with caching.
func matchRegex(pattern, text string) bool {
	behaviorRegexCache.RLock()
	re, ok := behaviorRegexCache.cache[pattern]
	behaviorRegexCache.RUnlock()

	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		behaviorRegexCache.Lock()
		behaviorRegexCache.cache[pattern] = re
		behaviorRegexCache.Unlock()
	}

	return re.MatchString(text)
}

// executeBehavior executes the action defined in a behavior and returns
// the reply it produces. key identifies the requesting sender, used to
// track per-sender output-sequence position.
func (s *Simulator) executeBehavior(ctx context.Context, b *Behavior, key string) (BehaviorResult, error) {
	action := b.Action

	s.logger.Debug("executing behavior",
		"action_type", action.Type,
		"delay", action.Delay,
		"pattern", b.Match,
	)

	delay := action.Delay
	if delay == 0 {
		delay = s.config.Timing.DefaultWorkDelay
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return BehaviorResult{}, ctx.Err()
		}
	}

	switch action.Type {
	case ActionComplete:
		return s.actionComplete(action, key), nil
	case ActionAsk:
		return s.actionAsk(action), nil
	case ActionFail:
		return s.actionFail(action), nil
	case ActionFailThenSucceed:
		return s.actionFailThenSucceed(b, action, key), nil
	case ActionHang:
		return s.actionHang(ctx)
	case ActionCrash:
		s.actionCrash(action)
		return BehaviorResult{}, nil // unreachable, actionCrash exits the process
	default:
		s.logger.Warn("unknown action type, defaulting to complete", "type", action.Type)
		return s.actionComplete(action, key), nil
	}
}

// actionComplete builds the successful completion result.
func (s *Simulator) actionComplete(action Action, key string) BehaviorResult {
	s.emitToolEvents(action.Events)

	outputs := s.getOutputs(action, key)
	if outputs == nil {
		outputs = map[string]any{}
	}
	return BehaviorResult{Action: ActionComplete, Outputs: outputs}
}

// getOutputs returns the appropriate outputs for an action.
// If OutputsSequence is set, it returns the output for the current call
// count for key, repeating the last output after the sequence runs out.
func (s *Simulator) getOutputs(action Action, key string) map[string]any {
	if len(action.OutputsSequence) == 0 {
		return action.Outputs
	}

	s.mu.Lock()
	idx := s.sequenceCounts[key]
	s.sequenceCounts[key]++
	s.mu.Unlock()

	if idx >= len(action.OutputsSequence) {
		idx = len(action.OutputsSequence) - 1
	}

	s.logger.Debug("using outputs from sequence", "index", idx, "total", len(action.OutputsSequence))
	return action.OutputsSequence[idx]
}

// actionAsk builds a clarifying-question result.
func (s *Simulator) actionAsk(action Action) BehaviorResult {
	question := action.Question
	if question == "" {
		question = "I have a question for you."
	}
	return BehaviorResult{Action: ActionAsk, Question: question}
}

// actionFail builds a failure result.
func (s *Simulator) actionFail(action Action) BehaviorResult {
	message := action.FailMessage
	if message == "" {
		message = "An error occurred"
	}
	return BehaviorResult{Action: ActionFail, ErrMessage: message}
}

// actionFailThenSucceed fails N times, then succeeds.
func (s *Simulator) actionFailThenSucceed(b *Behavior, action Action, key string) BehaviorResult {
	pattern := b.Match

	s.mu.Lock()
	s.attemptCounts[pattern]++
	attempt := s.attemptCounts[pattern]
	s.mu.Unlock()

	failCount := action.FailCount
	if failCount == 0 {
		failCount = 1
	}

	if attempt <= failCount {
		s.logger.Debug("fail_then_succeed: failing", "attempt", attempt, "max_failures", failCount)
		message := action.FailMessage
		if message == "" {
			message = fmt.Sprintf("Simulated failure (attempt %d/%d)", attempt, failCount)
		}
		return BehaviorResult{Action: ActionFailThenSucceed, ErrMessage: message}
	}

	s.logger.Debug("fail_then_succeed: succeeding", "attempt", attempt, "total_failures", failCount)
	s.mu.Lock()
	delete(s.attemptCounts, pattern)
	s.mu.Unlock()

	return s.actionComplete(action, key)
}

// actionHang blocks until ctx is cancelled, simulating a stuck agent.
func (s *Simulator) actionHang(ctx context.Context) (BehaviorResult, error) {
	s.logger.Info("hanging (simulating stuck agent)")
	<-ctx.Done()
	return BehaviorResult{}, ctx.Err()
}

// actionCrash exits the process (for testing crash recovery).
func (s *Simulator) actionCrash(action Action) {
	exitCode := action.ExitCode
	if exitCode == 0 {
		exitCode = 1
	}
	s.logger.Info("crashing", "exit_code", exitCode)
	fmt.Fprintf(os.Stderr, "Simulated crash with exit code %d\n", exitCode)
	os.Exit(exitCode)
}

// emitToolEvents logs the tool-use events a real agent would stream
// mid-task; this simulator has no separate event channel to carry them on.
func (s *Simulator) emitToolEvents(events []EventDef) {
	if !s.config.Hooks.FireToolEvents || len(events) == 0 {
		return
	}

	startTime := time.Now()
	for _, event := range events {
		targetTime := startTime.Add(event.When)
		if wait := time.Until(targetTime); wait > 0 {
			time.Sleep(wait)
		}
		s.logger.Debug("tool event", "type", event.Type, "data", event.Data, "when", event.When)
	}
}
