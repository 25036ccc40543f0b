// Package schema compiles and validates JSON-schema documents, used by the
// Scheduler's validating state to check ToolCallRequest.args against the
// ToolDefinition's parameters schema before a call ever reaches a provider
// process.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// compiledCache avoids recompiling the same tool's schema on every call;
// schemas are immutable for the lifetime of a connected server.
var (
	cacheMu sync.Mutex
	cache   = make(map[string]*jsonschema.Schema)
)

// ValidateArgs compiles schemaDoc (caching by its raw bytes) and validates
// args against it. A nil/empty args is treated as `{}`.
func ValidateArgs(schemaDoc json.RawMessage, args json.RawMessage) error {
	if len(schemaDoc) == 0 {
		return nil
	}

	compiled, err := compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("args is not valid JSON: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("args do not satisfy schema: %w", err)
	}
	return nil
}

func compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	cacheMu.Lock()
	if s, ok := cache[key]; ok {
		cacheMu.Unlock()
		return s, nil
	}
	cacheMu.Unlock()

	compiler := jsonschema.NewCompiler()
	const resourceName = "tool-args.json"
	if err := compiler.AddResource(resourceName, bytesReader(schemaDoc)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[key] = compiled
	cacheMu.Unlock()

	return compiled, nil
}
