package tools

import (
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Args reads typed tool arguments. Values may arrive as JSON numbers, strings
// or booleans depending on the transport, so they are coerced with cast and
// rejected when the coercion would lose information.
type Args map[string]interface{}

// ArgsFrom returns the arguments of a tool request
func ArgsFrom(request mcp.CallToolRequest) Args {
	return Args(request.GetArguments())
}

func (a Args) lookup(name string) (interface{}, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// SessionID returns the required session id, accepting the camelCase alias
func (a Args) SessionID() (string, error) {
	for _, name := range []string{config.ParamSessionID, config.ParamSessionIDAlias} {
		if _, ok := a.lookup(name); !ok {
			continue
		}
		id, err := a.String(name)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", types.NewError(types.KindInvalidParams, "required argument %q not found", config.ParamSessionID)
}

// RequireString returns a non-empty string argument
func (a Args) RequireString(name string) (string, error) {
	s, err := a.String(name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", types.NewError(types.KindInvalidParams, "required argument %q not found", name)
	}
	return s, nil
}

// String returns an optional string argument, trimmed. Missing yields "".
func (a Args) String(name string) (string, error) {
	v, ok := a.lookup(name)
	if !ok {
		return "", nil
	}
	s, isString := v.(string)
	if !isString {
		return "", types.NewError(types.KindInvalidParams, "argument %q must be a string", name)
	}
	return strings.TrimSpace(s), nil
}

// Int returns an optional integer argument. Missing yields def.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a.lookup(name)
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case bool:
		return 0, types.NewError(types.KindInvalidParams, "argument %q must be an integer", name)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, types.NewError(types.KindInvalidParams, "argument %q must be an integer", name)
		}
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, types.NewError(types.KindInvalidParams, "argument %q must be an integer", name)
		}
	case string:
		// decimal only; cast would read "010" as octal
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, types.WrapError(types.KindInvalidParams, err, "argument %q must be an integer", name)
		}
		return i, nil
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, types.WrapError(types.KindInvalidParams, err, "argument %q must be an integer", name)
	}
	return i, nil
}

// IntInRange returns an optional integer argument bounded by [min, max]
func (a Args) IntInRange(name string, def, min, max int) (int, error) {
	i, err := a.Int(name, def)
	if err != nil {
		return 0, err
	}
	if i < min || i > max {
		return 0, types.NewError(types.KindInvalidParams, "argument %q must be between %d and %d, got %d", name, min, max, i)
	}
	return i, nil
}

// Bool returns an optional boolean argument. Missing yields false.
func (a Args) Bool(name string) (bool, error) {
	v, ok := a.lookup(name)
	if !ok {
		return false, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, types.WrapError(types.KindInvalidParams, err, "argument %q must be a boolean", name)
	}
	return b, nil
}

// StringMap returns an optional object of string values
func (a Args) StringMap(name string) (map[string]string, error) {
	v, ok := a.lookup(name)
	if !ok {
		return nil, nil
	}
	raw, isMap := v.(map[string]interface{})
	if !isMap {
		if typed, isTyped := v.(map[string]string); isTyped {
			return typed, nil
		}
		return nil, types.NewError(types.KindInvalidParams, "argument %q must be an object of strings", name)
	}
	for key, val := range raw {
		switch val.(type) {
		case map[string]interface{}, []interface{}, nil:
			return nil, types.NewError(types.KindInvalidParams, "argument %q: value for %q must be a scalar", name, key)
		}
	}
	m, err := cast.ToStringMapStringE(raw)
	if err != nil {
		return nil, types.WrapError(types.KindInvalidParams, err, "argument %q must be an object of strings", name)
	}
	return m, nil
}
