package scene

import (
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "vector": {
      "type": "object",
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"},
        "z": {"type": "number"}
      },
      "additionalProperties": false
    },
    "layer": {"type": "integer", "minimum": 0, "maximum": 31},
    "obstacle": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": {"type": "string", "format": "scene_ref"},
        "kind": {"enum": ["segment", "box", "circle"]},
        "layer": {"$ref": "#/definitions/layer"},
        "a": {"$ref": "#/definitions/vector"},
        "b": {"$ref": "#/definitions/vector"},
        "center": {"$ref": "#/definitions/vector"},
        "extents": {"$ref": "#/definitions/vector"},
        "radius": {"type": "number", "exclusiveMinimum": 0}
      },
      "allOf": [
        {
          "if": {"properties": {"kind": {"const": "segment"}}},
          "then": {"required": ["a", "b"]}
        },
        {
          "if": {"properties": {"kind": {"const": "box"}}},
          "then": {"required": ["center", "extents"]}
        },
        {
          "if": {"properties": {"kind": {"const": "circle"}}},
          "then": {"required": ["center", "radius"]}
        }
      ],
      "additionalProperties": false
    },
    "target": {
      "type": "object",
      "required": ["handle", "position"],
      "properties": {
        "handle": {"type": "string", "format": "scene_ref"},
        "layer": {"$ref": "#/definitions/layer"},
        "position": {"$ref": "#/definitions/vector"},
        "radius": {"type": "number", "minimum": 0}
      },
      "additionalProperties": false
    }
  },
  "properties": {
    "name": {"type": "string"},
    "grid_resolution": {"type": "number", "exclusiveMinimum": 0},
    "obstacles": {"type": ["array", "null"], "items": {"$ref": "#/definitions/obstacle"}},
    "targets": {"type": ["array", "null"], "items": {"$ref": "#/definitions/target"}}
  },
  "additionalProperties": false
}`

var (
	sceneRefRegexp = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
	schema         *gojsonschema.Schema
)

// sceneRefFormatChecker accepts the identifiers used for scenes, obstacles
// and targets.
type sceneRefFormatChecker struct{}

func (c sceneRefFormatChecker) IsFormat(input interface{}) bool {
	s, ok := input.(string)
	return ok && IsValidRef(s)
}

// IsValidRef reports whether s can be used as a scene, obstacle or target
// identifier.
func IsValidRef(s string) bool {
	return sceneRefRegexp.MatchString(s)
}

func init() {
	gojsonschema.FormatCheckers.Add("scene_ref", sceneRefFormatChecker{})

	var err error
	schema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		panic(err)
	}
}
