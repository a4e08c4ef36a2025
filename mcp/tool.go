package mcp

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/metoro-io/mcp-runtime-go/tools"
)

// ToolDescriptor is what Server keeps for each registered tool and
// serves over tools/list and tools/call: a name, the JSON schema its
// arguments must validate against, and an invocation function. It is the
// shape other components hang declarations off, not a full
// tool/prompt/resource registry.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}

	// Call invokes the tool. argsJSON is the raw, merged tool-call
	// arguments (e.g. the result of streamcall.Manager.Complete, or a
	// single unary tools/call's params.arguments).
	Call func(ctx context.Context, argsJSON []byte) (*tools.ToolResponse, error)
}

// reflector is shared across NewToolDescriptor calls the way a package
// would share one *jsonschema.Reflector instance rather than allocate per
// call; it has no mutable per-call state.
var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: false,
}

// NewToolDescriptor builds a ToolDescriptor for a handler that is a
// function of exactly one struct argument tagged with jsonschema struct
// tags, returning (*tools.ToolResponse, error). The input schema is
// generated by reflecting over the argument type.
func NewToolDescriptor(name, description string, handler interface{}) (*ToolDescriptor, error) {
	fn := reflect.ValueOf(handler)
	fnType := fn.Type()
	if fnType.Kind() != reflect.Func {
		return nil, errors.Errorf("mcp: tool %q handler must be a function, got %s", name, fnType.Kind())
	}
	if fnType.NumIn() != 1 {
		return nil, errors.Errorf("mcp: tool %q handler must take exactly one argument struct", name)
	}
	if fnType.NumOut() != 2 {
		return nil, errors.Errorf("mcp: tool %q handler must return (*tools.ToolResponse, error)", name)
	}

	argType := fnType.In(0)
	schema := reflector.ReflectFromType(argType)

	raw, err := schema.MarshalJSON()
	if err != nil {
		return nil, errors.Wrapf(err, "mcp: generating schema for tool %q", name)
	}
	inputSchema, err := schemaToMap(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "mcp: decoding schema for tool %q", name)
	}

	return &ToolDescriptor{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
		Call: func(ctx context.Context, argsJSON []byte) (*tools.ToolResponse, error) {
			argPtr := reflect.New(argType)
			if len(argsJSON) > 0 {
				if err := json.Unmarshal(argsJSON, argPtr.Interface()); err != nil {
					return nil, errors.Wrapf(err, "mcp: decoding arguments for tool %q", name)
				}
			}

			out := fn.Call([]reflect.Value{argPtr.Elem()})
			resp, _ := out[0].Interface().(*tools.ToolResponse)
			errOut, _ := out[1].Interface().(error)
			return resp, errOut
		},
	}, nil
}

func schemaToMap(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
