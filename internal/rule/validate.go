package rule

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Violation is one structural problem found in a rule definition.
type Violation struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// ValidationError aggregates violations so a caller sees every problem in
// one pass instead of fixing them one at a time.
type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := "rule validation failed:\n"
	for _, v := range e {
		line := "- " + v.Message
		if v.Path != "" {
			line += " at " + v.Path
		}
		msg += line + "\n"
	}
	return msg
}

func violationf(path, format string, args ...any) *Violation {
	return &Violation{Message: fmt.Sprintf(format, args...), Path: path}
}

// Validate checks structural well-formedness of a parsed rule tree:
// combinator presence, recognized operators, and value presence for
// operators that require one. It returns a ValidationError listing every
// violation, or nil.
func Validate(root *Group) error {
	if root == nil {
		return ValidationError{violationf("root", "rule has no definition")}
	}
	var out ValidationError
	validateGroup(root, "root", &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateGroup(g *Group, path string, out *ValidationError) {
	switch g.Combinator {
	case And, Or:
	case "":
		*out = append(*out, violationf(path, "group is missing combinator"))
	default:
		*out = append(*out, violationf(path, "unknown combinator %q", g.Combinator))
	}
	for i, item := range g.Items {
		itemPath := fmt.Sprintf("%s.rules[%d]", path, i)
		switch {
		case item.Group != nil:
			validateGroup(item.Group, itemPath, out)
		case item.Condition != nil:
			validateCondition(item.Condition, itemPath, out)
		default:
			*out = append(*out, violationf(itemPath, "item is neither condition nor group"))
		}
	}
}

func validateCondition(c *Condition, path string, out *ValidationError) {
	if c.Field == "" {
		*out = append(*out, violationf(path, "condition is missing field"))
	}
	if !KnownOperator(c.Operator) {
		*out = append(*out, violationf(path, "unknown operator %q", c.Operator))
		return
	}
	if !Valueless(c.Operator) && c.Value == nil {
		*out = append(*out, violationf(path, "operator %s requires a value", c.Operator))
	}
}

// wireSchema captures the serialized shape of a rule definition. It rejects
// malformed documents before the tagged-variant decoding runs, so decode
// errors surface as named violations instead of json unmarshal noise.
const wireSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "group": {
      "type": "object",
      "required": ["combinator", "items"],
      "properties": {
        "combinator": {"type": "string"},
        "not": {"type": "boolean"},
        "items": {
          "type": "array",
          "items": {
            "anyOf": [
              {"$ref": "#/definitions/group"},
              {"$ref": "#/definitions/condition"}
            ]
          }
        }
      }
    },
    "condition": {
      "type": "object",
      "required": ["field", "operator"],
      "properties": {
        "field": {"type": "string"},
        "operator": {"type": "string"},
        "not": {"type": "boolean"}
      }
    }
  },
  "$ref": "#/definitions/group"
}`

var wireSchemaLoader = gojsonschema.NewStringLoader(wireSchema)

// ValidateJSON checks a serialized rule group against the wire schema.
func ValidateJSON(data []byte) error {
	res, err := gojsonschema.Validate(wireSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ValidationError{violationf("root", "invalid rule document: %v", err)}
	}
	if res.Valid() {
		return nil
	}
	var out ValidationError
	for _, re := range res.Errors() {
		out = append(out, violationf(re.Field(), "%s", re.Description()))
	}
	return out
}
