package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/tools/builtins/pyrunner"
)

// newFlagSet returns a flag set for a subcommand with the shared --config
// flag registered.
func (c *cli) newFlagSet(name string) (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet("funcrun "+name, pflag.ContinueOnError)
	flags.SetOutput(c.stderr)
	configPath := flags.String("config", "", "path to the YAML config file")
	return flags, configPath
}

func parseFlags(flags *pflag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return api.NewInvalidRequestError("", err.Error())
	}
	return nil
}

// runCommand runs inline code or a stored function and prints the result.
func (c *cli) runCommand(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("run")
	codePath := flags.String("code", "", "Python source file, - for stdin")
	name := flags.String("name", pyrunner.DefaultFunName, "entry point used when the code defines no run()")
	params := flags.String("params", "", "JSON object passed as keyword arguments")
	deps := flags.StringArray("dep", nil, "pip requirement to install before the run (repeatable)")
	stored := flags.String("stored", "", "name of a stored function to run instead of --code")
	serverURL := flags.String("server-url", "", "code interpreter MCP endpoint for this run")
	serverLabel := flags.String("server-label", "", "label of the code interpreter for this run")
	apiKey := flags.String("api-key", "", "bearer token for --server-url")
	if err := parseFlags(flags, args); err != nil {
		return err
	}

	var server *api.ServerRef
	if *serverURL != "" || *serverLabel != "" {
		server = &api.ServerRef{Label: *serverLabel, URL: *serverURL, APIKey: *apiKey}
	}

	switch {
	case *stored != "" && *codePath != "":
		return api.NewInvalidRequestError("stored", "--stored and --code are mutually exclusive")
	case *stored == "" && *codePath == "":
		return api.NewInvalidRequestError("code", "either --code or --stored is required")
	case *stored != "" && (server != nil || len(*deps) > 0):
		return api.NewInvalidRequestError("stored", "stored functions run with their own deps on the configured interpreter")
	}

	a, err := c.setup(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	var res *interpreter.CodeExecResult
	if *stored != "" {
		res, err = a.functions.Execute(ctx, *stored, []byte(*params), c.eventSink())
	} else {
		src, readErr := c.readSource(*codePath)
		if readErr != nil {
			return readErr
		}
		req := interpreter.CodeExecuteReq{
			FunName:     *name,
			Deps:        *deps,
			EncodedCode: base64.StdEncoding.EncodeToString(src),
			Server:      server,
		}
		if p := strings.TrimSpace(*params); p != "" {
			req.EncodedJSONParams = base64.StdEncoding.EncodeToString([]byte(p))
		}
		res, err = a.runner.RunCode(ctx, req, c.eventSink())
	}
	if err != nil {
		return err
	}

	if err := writeJSON(c.stdout, res); err != nil {
		return err
	}
	if res.Failed() {
		return errRunFailed
	}
	return nil
}

// readSource reads a source file, or stdin for "-".
func (c *cli) readSource(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, api.NewInvalidRequestError("code", fmt.Sprintf("reading source: %v", err))
	}
	return data, nil
}
