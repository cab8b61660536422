package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/tendlist/tend/internal/suggest"
)

// Credentials collects an email and password, interactively when a
// terminal is attached and from stdin lines otherwise (for scripted
// use). confirm adds a repeat-password field for sign-up.
func Credentials(email, password *string, confirm bool) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return credentialsFromStdin(email, password)
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Email").
			Value(email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return fmt.Errorf("enter an email address")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(func(s string) error {
				if len(s) < 6 {
					return fmt.Errorf("password must be at least 6 characters")
				}
				return nil
			}),
	}
	if confirm {
		fields = append(fields, huh.NewInput().
			Title("Repeat password").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error {
				if s != *password {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}))
	}

	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

// credentialsFromStdin reads "email\npassword\n" without prompting.
func credentialsFromStdin(email, password *string) error {
	reader := bufio.NewReader(os.Stdin)
	if *email == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		*email = strings.TrimSpace(line)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	*password = strings.TrimSpace(line)
	return nil
}

// PickSuggestions lets the user choose which AI suggestions to accept.
// Without a terminal every suggestion is accepted, so piped usage still
// works.
func PickSuggestions(items []suggest.Suggestion) ([]suggest.Suggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return items, nil
	}

	options := make([]huh.Option[int], len(items))
	for i, item := range items {
		label := item.Title
		if item.Reason != "" {
			label += "  (" + item.Reason + ")"
		}
		options[i] = huh.NewOption(label, i).Selected(true)
	}

	var picked []int
	form := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[int]().
			Title("Add which suggestions?").
			Options(options...).
			Value(&picked),
	))
	if err := form.Run(); err != nil {
		return nil, err
	}

	out := make([]suggest.Suggestion, 0, len(picked))
	for _, i := range picked {
		out = append(out, items[i])
	}
	return out, nil
}

// Confirm asks a yes/no question, defaulting to no. Without a terminal
// it answers no, so destructive commands need an explicit flag when
// scripted.
func Confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, nil
	}
	var yes bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(prompt).Value(&yes),
	)).Run()
	return yes, err
}
