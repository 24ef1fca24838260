package ui

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"

	"github.com/redmonkez12/todo-app/internal/account"
	"github.com/redmonkez12/todo-app/internal/auth"
	"github.com/redmonkez12/todo-app/internal/todo"
)

// PromptCredentials asks for whichever of email and password is still empty
func PromptCredentials(title string, creds account.Credentials) (account.Credentials, error) {
	var fields []huh.Field
	if creds.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&creds.Email).
			Validate(func(s string) error {
				if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
					return errors.New("enter a valid email address")
				}
				return nil
			}))
	}
	if creds.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&creds.Password).
			Validate(func(s string) error {
				if n := utf8.RuneCountInString(s); n < auth.MinPasswordLength || n > auth.MaxPasswordLength {
					return fmt.Errorf("password must be %d to %d characters", auth.MinPasswordLength, auth.MaxPasswordLength)
				}
				return nil
			}))
	}
	if len(fields) == 0 {
		return creds, nil
	}

	form := huh.NewForm(huh.NewGroup(fields...).Title(title)).WithTheme(huh.ThemeCatppuccin())
	if err := form.Run(); err != nil {
		return account.Credentials{}, err
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return creds, nil
}

// PromptDraft fills in the fields of a new entry that were not given as flags
func PromptDraft(d todo.Draft) (todo.Draft, error) {
	priority := string(d.Priority)
	if priority == "" {
		priority = string(todo.PriorityMedium)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				CharLimit(todo.MaxTitleLength).
				Value(&d.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				CharLimit(todo.MaxDescriptionLength).
				Value(&d.Description),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("Low", string(todo.PriorityLow)),
					huh.NewOption("Medium", string(todo.PriorityMedium)),
					huh.NewOption("High", string(todo.PriorityHigh)),
				).
				Value(&priority),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		return todo.Draft{}, err
	}
	d.Priority = todo.Priority(priority)
	return d, nil
}

// Confirm asks a yes/no question, defaulting to no
func Confirm(question string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeCatppuccin())
	err := form.Run()
	return ok, err
}
