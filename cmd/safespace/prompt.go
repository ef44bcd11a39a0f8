package main

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"
)

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ask fills value from a prompt unless it is already set
func ask(message string, value *string) error {
	if *value != "" {
		return nil
	}
	if !interactive() {
		return &exitMessage{message: fmt.Sprintf("%s is required when not running in a terminal", message)}
	}
	return survey.AskOne(&survey.Input{Message: message + ":"}, value)
}

func askPassword(value *string) error {
	if *value != "" {
		return nil
	}
	if p := os.Getenv("SAFESPACE_PASSWORD"); p != "" {
		*value = p
		return nil
	}
	if !interactive() {
		return &exitMessage{message: "password is required: set --password or SAFESPACE_PASSWORD"}
	}
	return survey.AskOne(&survey.Password{Message: "Password:"}, value)
}

func askCode(value *string) error {
	if *value != "" {
		return nil
	}
	if !interactive() {
		return &exitMessage{message: "a 6-digit code is required: set --code"}
	}
	return survey.AskOne(&survey.Input{Message: "Verification code:"}, value)
}

func confirm(message string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if !interactive() {
		return false, &exitMessage{message: "refusing to continue without --yes when not running in a terminal"}
	}
	var ok bool
	if err := survey.AskOne(&survey.Confirm{Message: message}, &ok); err != nil {
		return false, fmt.Errorf("error confirming: %w", err)
	}
	return ok, nil
}
