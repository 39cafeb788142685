package interpreter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const tabWidth = 4

var pyIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Names a callee variable must not take: Python keywords and every name
// the wrapper program itself relies on after binding the entry point.
var reservedNames = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,

	"contextlib": true, "io": true, "json": true, "subprocess": true, "sys": true,
	"DEPS": true, "ENTRYPOINT": true, "print": true, "callable": true,
	"compile": true, "exec": true, "str": true, "RuntimeError": true,
	"__builtins__": true, "_pkg": true, "_pip": true, "_code": true, "_ns": true,
	"_buf": true, "_entry": true, "_result": true, "_user_stdout": true,
}

// NewAssembleAttributes validates req and decodes it into the pieces
// [Assemble] embeds. The boolean result reports whether the request
// carries parameters.
func NewAssembleAttributes(req CodeExecuteReq) (CodeAssembleAttributes, bool, error) {
	if strings.TrimSpace(req.FunName) == "" {
		return CodeAssembleAttributes{}, false, ErrMissingFunctionName
	}
	if strings.TrimSpace(req.EncodedCode) == "" {
		return CodeAssembleAttributes{}, false, ErrMissingCode
	}

	src, err := decodeBase64(req.EncodedCode)
	if err != nil {
		return CodeAssembleAttributes{}, false, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	if strings.TrimSpace(string(src)) == "" {
		return CodeAssembleAttributes{}, false, ErrMissingCode
	}

	deps := req.Deps
	if deps == nil {
		deps = []string{}
	}

	attrs := CodeAssembleAttributes{
		Name:     req.FunName,
		Deps:     jsonLiteral(deps),
		UserCode: jsonLiteral(NormalizeSource(string(src))),
	}

	if strings.TrimSpace(req.EncodedJSONParams) == "" {
		return attrs, false, nil
	}

	params := decodeParams(req.EncodedJSONParams)
	attrs.Params, err = pyDictLiteral(params)
	if err != nil {
		return CodeAssembleAttributes{}, false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return attrs, true, nil
}

// Assemble builds the Python program for attrs. The program installs the
// dependencies, executes the user code in its own namespace, calls the
// entry point (run, else the configured name) and prints exactly one JSON
// line holding function_output and user_stdout. Everything the user code
// prints is captured into user_stdout instead of reaching stdout.
//
// Assemble is pure: equal inputs produce byte-identical programs.
func Assemble(attrs CodeAssembleAttributes, hasParams bool) string {
	callee := calleeName(attrs.Name)

	var b strings.Builder
	b.WriteString("import contextlib\nimport io\nimport json\nimport subprocess\nimport sys\n\n")

	b.WriteString("DEPS = " + attrs.Deps + "\n")
	b.WriteString("for _pkg in DEPS:\n")
	b.WriteString("    _pkg = _pkg.strip()\n")
	b.WriteString("    if not _pkg:\n")
	b.WriteString("        continue\n")
	b.WriteString("    _pip = subprocess.run([sys.executable, \"-m\", \"pip\", \"install\", \"--quiet\", _pkg], capture_output=True, text=True)\n")
	b.WriteString("    if _pip.returncode != 0:\n")
	b.WriteString("        sys.stderr.write(_pip.stderr)\n")
	b.WriteString("        raise RuntimeError(f\"failed to install {_pkg!r}\")\n\n")

	b.WriteString("ENTRYPOINT = " + jsonLiteral(attrs.Name) + "\n")
	b.WriteString("_code = " + attrs.UserCode + "\n")
	b.WriteString("_ns = {\"__name__\": \"__user_code__\", \"__builtins__\": __builtins__}\n")
	b.WriteString("_buf = io.StringIO()\n")
	b.WriteString("with contextlib.redirect_stdout(_buf):\n")
	b.WriteString("    exec(compile(_code, \"<user_code>\", \"exec\"), _ns)\n\n")

	b.WriteString("_entry = _ns.get(\"run\")\n")
	b.WriteString("if not callable(_entry):\n")
	b.WriteString("    _entry = _ns.get(ENTRYPOINT)\n")
	b.WriteString("if not callable(_entry):\n")
	b.WriteString("    raise RuntimeError(f\"entry point {ENTRYPOINT!r} not found: define run() or {ENTRYPOINT}()\")\n")
	if callee != "_entry" {
		b.WriteString(callee + " = _entry\n")
	}

	b.WriteString("with contextlib.redirect_stdout(_buf):\n")
	if hasParams {
		b.WriteString("    _result = " + callee + "(**" + attrs.Params + ")\n\n")
	} else {
		b.WriteString("    _result = " + callee + "()\n\n")
	}

	b.WriteString("_user_stdout = _buf.getvalue().strip() or None\n")
	b.WriteString("print(json.dumps({\"function_output\": _result, \"user_stdout\": _user_stdout}, ensure_ascii=False, default=str))\n")
	return b.String()
}

// NormalizeSource converts CRLF and lone CR line endings to LF and expands
// tabs to 4-column tab stops.
func NormalizeSource(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	if !strings.Contains(src, "\t") {
		return src
	}

	var b strings.Builder
	b.Grow(len(src))
	col := 0
	for _, r := range src {
		switch r {
		case '\t':
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}

// calleeName picks the variable the entry point is bound to before the
// call, so the call reads like the user's own function.
func calleeName(name string) string {
	if pyIdentifier.MatchString(name) && !reservedNames[name] {
		return name
	}
	return "_entry"
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// decodeParams returns the JSON text of the parameters. Values that are
// not base64 are taken to be JSON already.
func decodeParams(s string) []byte {
	if b, err := decodeBase64(s); err == nil {
		return b
	}
	return []byte(strings.TrimSpace(s))
}

// jsonLiteral encodes v as compact JSON without HTML escaping. The output
// of strings and string slices is also a valid Python literal.
func jsonLiteral(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Only strings and []string are encoded here.
		panic(fmt.Sprintf("interpreter: encoding %T: %v", v, err))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// pyDictLiteral renders a JSON object as a compact Python dict literal,
// keeping key order and number text as written.
func pyDictLiteral(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("invalid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", fmt.Errorf("got %s, want object", describeToken(tok))
	}

	var b strings.Builder
	if err := writePyContainer(dec, &b, '{'); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writePyValue(dec *json.Decoder, b *strings.Builder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		return writePyContainer(dec, b, v)
	case string:
		b.WriteString(jsonLiteral(v))
	case json.Number:
		b.WriteString(v.String())
	case bool:
		if v {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case nil:
		b.WriteString("None")
	default:
		return fmt.Errorf("unexpected token %v", tok)
	}
	return nil
}

// writePyContainer writes an object or array whose opening delimiter has
// already been consumed.
func writePyContainer(dec *json.Decoder, b *strings.Builder, open json.Delim) error {
	if open == '{' {
		b.WriteByte('{')
	} else {
		b.WriteByte('[')
	}

	for i := 0; dec.More(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if open == '{' {
			key, err := dec.Token()
			if err != nil {
				return err
			}
			b.WriteString(jsonLiteral(key.(string)))
			b.WriteByte(':')
		}
		if err := writePyValue(dec, b); err != nil {
			return err
		}
	}

	// Closing delimiter.
	if _, err := dec.Token(); err != nil {
		return err
	}
	if open == '{' {
		b.WriteByte('}')
	} else {
		b.WriteByte(']')
	}
	return nil
}

func describeToken(tok json.Token) string {
	switch tok.(type) {
	case json.Delim:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}
