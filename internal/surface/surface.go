// Package surface renders interactive prompts in the terminal using huh
// forms. It is the in-process presentation strategy: the dispatcher drives
// it directly on the dedicated execution thread.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"parley/internal/envelope"
)

// Surface implements dispatch.Runner with terminal forms.
type Surface struct{}

// New creates a terminal presentation surface.
func New() *Surface {
	return &Surface{}
}

// Run renders the prompt for one request and collects the human's answer.
// Aborting the form (Esc or Ctrl+C) is a cancellation, not an error.
func (s *Surface) Run(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	switch req.Kind {
	case envelope.KindInput:
		return s.runInput(ctx, req)
	case envelope.KindChoice:
		return s.runChoice(ctx, req)
	case envelope.KindConfirmation:
		return s.runConfirmation(ctx, req)
	case envelope.KindInfo:
		return s.runInfo(ctx, req)
	case envelope.KindMultiline:
		return s.runMultiline(ctx, req)
	default:
		return envelope.Result{}, fmt.Errorf("unsupported kind %q", req.Kind)
	}
}

func (s *Surface) runInput(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	value := req.DefaultValue()
	input := huh.NewInput().
		Title(req.Title()).
		Description(req.Prompt()).
		Value(&value)

	switch req.InputType() {
	case envelope.InputInteger:
		input = input.Validate(validateInteger)
	case envelope.InputFloat:
		input = input.Validate(validateFloat)
	}

	form := huh.NewForm(huh.NewGroup(input))
	if err := form.RunWithContext(ctx); err != nil {
		return abortedOrError(err)
	}

	// An empty submission means the human declined to answer.
	if value == "" {
		return envelope.CancelledResult(), nil
	}
	return convertInput(value, req.InputType())
}

// convertInput applies the requested input type to the raw text.
func convertInput(value, inputType string) (envelope.Result, error) {
	switch inputType {
	case envelope.InputInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return envelope.Result{}, fmt.Errorf("parse integer input: %w", err)
		}
		return envelope.ValueResult(n), nil
	case envelope.InputFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return envelope.Result{}, fmt.Errorf("parse float input: %w", err)
		}
		return envelope.ValueResult(f), nil
	default:
		return envelope.ValueResult(value), nil
	}
}

func validateInteger(s string) error {
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return errors.New("enter a whole number")
	}
	return nil
}

func validateFloat(s string) error {
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
		return errors.New("enter a number")
	}
	return nil
}

func (s *Surface) runChoice(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	choices := req.Choices()
	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		options = append(options, huh.NewOption(c, c))
	}

	if req.AllowMultiple() {
		var selected []string
		form := huh.NewForm(huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title(req.Title()).
				Description(req.Prompt()).
				Options(options...).
				Value(&selected),
		))
		if err := form.RunWithContext(ctx); err != nil {
			return abortedOrError(err)
		}
		if len(selected) == 0 {
			return envelope.CancelledResult(), nil
		}
		// huh fills the slice in option order, which is the presentation
		// order the result contract requires.
		return envelope.ValueResult(selected), nil
	}

	var selected string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(req.Title()).
			Description(req.Prompt()).
			Options(options...).
			Value(&selected),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return abortedOrError(err)
	}
	if selected == "" {
		return envelope.CancelledResult(), nil
	}
	return envelope.ValueResult(selected), nil
}

func (s *Surface) runConfirmation(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(req.Title()).
			Description(req.Message()).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return abortedOrError(err)
	}
	return envelope.ValueResult(confirmed), nil
}

func (s *Surface) runInfo(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	form := huh.NewForm(huh.NewGroup(
		huh.NewNote().
			Title(req.Title()).
			Description(req.Message()).
			Next(true).
			NextLabel("OK"),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return abortedOrError(err)
	}
	return envelope.ValueResult(true), nil
}

func (s *Surface) runMultiline(ctx context.Context, req envelope.Request) (envelope.Result, error) {
	value := req.DefaultValue()
	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title(req.Title()).
			Description(req.Prompt()).
			Value(&value),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return abortedOrError(err)
	}
	return envelope.ValueResult(strings.TrimRight(value, "\n")), nil
}

// abortedOrError maps a dismissed form to the cancelled outcome and
// everything else to a presentation error.
func abortedOrError(err error) (envelope.Result, error) {
	if errors.Is(err, huh.ErrUserAborted) {
		return envelope.CancelledResult(), nil
	}
	return envelope.Result{}, fmt.Errorf("run form: %w", err)
}
