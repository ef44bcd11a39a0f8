package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/gosuri/uitable"

	"github.com/safespace/server/internal/errmsg"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateOutputFormat(format string) error {
	switch strings.ToLower(format) {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("invalid output format %q; use table, json or yaml", format)
}

// render prints v as JSON or YAML, or table when the table format is selected
func render(v any, table func() *uitable.Table) error {
	switch strings.ToLower(outputFormat) {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("error formatting output: %w", err)
		}
		fmt.Println(string(data))
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("error formatting output: %w", err)
		}
		fmt.Print(string(data))
	default:
		fmt.Println(table())
	}
	return nil
}

// userMessage turns provider and API errors into the same text the web app shows
func userMessage(err error) string {
	var exit *exitMessage
	if errors.As(err, &exit) {
		return exit.message
	}
	return errmsg.TranslateErr(err).Message
}

// exitMessage is an error whose text is already fit for the user
type exitMessage struct{ message string }

func (e *exitMessage) Error() string { return e.message }
