package transfer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

// fileSchema fixes the envelope of an export file. Individual prompts are
// checked one by one so a single bad record does not reject the file.
const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["prompts"],
  "properties": {
    "version":    {"type": "integer", "minimum": 1},
    "exportedAt": {"type": "string"},
    "exportedBy": {"type": "string"},
    "scope":      {"enum": ["personal", "team", "all"]},
    "prompts":    {"type": "array", "items": {"type": "object"}}
  }
}`

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("export.json", strings.NewReader(fileSchema)); err != nil {
		return nil, fmt.Errorf("load export schema: %w", err)
	}
	return compiler.Compile("export.json")
})

func validateShape(raw []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Invalid("file", "not valid JSON: "+err.Error())
	}
	if err := schema.Validate(doc); err != nil {
		return apperr.Invalid("file", err.Error())
	}
	return nil
}
