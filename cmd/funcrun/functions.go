package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/functions"
)

// functionsCommand manages the stored function registry.
func (c *cli) functionsCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return api.NewInvalidRequestError("", "usage: funcrun functions create|update|get|list|delete")
	}

	switch args[0] {
	case "create":
		return c.createFunction(ctx, args[1:])
	case "update":
		return c.updateFunction(ctx, args[1:])
	case "get":
		return c.getFunction(ctx, args[1:])
	case "list":
		return c.listFunctions(ctx, args[1:])
	case "delete":
		return c.deleteFunction(ctx, args[1:])
	default:
		return api.NewInvalidRequestError("", fmt.Sprintf("unknown functions command %q", args[0]))
	}
}

func (c *cli) createFunction(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("functions create")
	name := flags.String("name", "", "function name")
	description := flags.String("description", "", "what the function does")
	codePath := flags.String("code", "", "Python source file defining run(), - for stdin")
	deps := flags.StringArray("dep", nil, "pip requirement (repeatable)")
	inputSchema := flags.String("input-schema", "", "JSON Schema of the parameters")
	outputSchema := flags.String("output-schema", "", "JSON Schema of the result")
	if err := parseFlags(flags, args); err != nil {
		return err
	}

	fn := functions.Function{
		Name:        *name,
		Description: *description,
		Deps:        *deps,
	}
	if *codePath != "" {
		src, err := c.readSource(*codePath)
		if err != nil {
			return err
		}
		fn.Code = string(src)
	}
	var err error
	if fn.InputSchema, err = schemaFlag("input-schema", *inputSchema); err != nil {
		return err
	}
	if fn.OutputSchema, err = schemaFlag("output-schema", *outputSchema); err != nil {
		return err
	}

	a, err := c.setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	created, err := a.functions.Create(ctx, fn)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, created)
}

func (c *cli) updateFunction(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("functions update")
	description := flags.String("description", "", "new description")
	codePath := flags.String("code", "", "new Python source file, - for stdin")
	deps := flags.StringArray("dep", nil, "replacement pip requirement (repeatable)")
	inputSchema := flags.String("input-schema", "", "new JSON Schema of the parameters")
	outputSchema := flags.String("output-schema", "", "new JSON Schema of the result")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	name, err := nameArg(flags.Args())
	if err != nil {
		return err
	}

	var u functions.Update
	if flags.Changed("description") {
		u.Description = description
	}
	if flags.Changed("code") {
		src, err := c.readSource(*codePath)
		if err != nil {
			return err
		}
		code := string(src)
		u.Code = &code
	}
	if flags.Changed("dep") {
		u.Deps = *deps
	}
	if u.InputSchema, err = schemaFlag("input-schema", *inputSchema); err != nil {
		return err
	}
	if u.OutputSchema, err = schemaFlag("output-schema", *outputSchema); err != nil {
		return err
	}

	a, err := c.setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	updated, err := a.functions.Update(ctx, name, u)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, updated)
}

func (c *cli) getFunction(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("functions get")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	name, err := nameArg(flags.Args())
	if err != nil {
		return err
	}

	a, err := c.setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	fn, err := a.functions.Get(ctx, name)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, fn)
}

func (c *cli) listFunctions(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("functions list")
	query := flags.String("query", "", "case-insensitive name search")
	limit := flags.Int("limit", functions.DefaultListLimit, "maximum number of functions")
	after := flags.String("after", "", "cursor returned by the previous page")
	includeCode := flags.Bool("include-code", false, "include the source of each function")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if *limit < 0 {
		return api.NewInvalidRequestError("limit", "limit cannot be negative")
	}

	a, err := c.setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	list, err := a.functions.List(ctx, *query, functions.ListOptions{Limit: *limit, After: *after}, *includeCode)
	if err != nil {
		return err
	}
	if list.Data == nil {
		list.Data = []functions.Function{}
	}
	return writeJSON(c.stdout, list)
}

func (c *cli) deleteFunction(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("functions delete")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	name, err := nameArg(flags.Args())
	if err != nil {
		return err
	}

	a, err := c.setup(ctx, *configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.functions.Delete(ctx, name); err != nil {
		return err
	}
	return writeJSON(c.stdout, map[string]any{"name": name, "deleted": true})
}

func nameArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", api.NewInvalidRequestError("name", "exactly one function name is required")
	}
	return args[0], nil
}

// schemaFlag returns the flag value as raw JSON, nil when empty.
func schemaFlag(param, value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}
	if !json.Valid([]byte(value)) {
		return nil, api.NewInvalidRequestError(param, "not valid JSON")
	}
	return json.RawMessage(value), nil
}
