package scene

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidSceneDocument = "invalid-scene-document"
)

type ObstacleKind string

const (
	Segment ObstacleKind = "segment"
	Box     ObstacleKind = "box"
	Circle  ObstacleKind = "circle"
)

// Obstacle is an opaque shape. Which fields are set depends on Kind.
type Obstacle struct {
	ID    string       `json:"id" yaml:"id"`
	Kind  ObstacleKind `json:"kind" yaml:"kind"`
	Layer int          `json:"layer,omitempty" yaml:"layer,omitempty"`

	A       *geometry.Vector3 `json:"a,omitempty" yaml:"a,omitempty"`
	B       *geometry.Vector3 `json:"b,omitempty" yaml:"b,omitempty"`
	Center  *geometry.Vector3 `json:"center,omitempty" yaml:"center,omitempty"`
	Extents *geometry.Vector3 `json:"extents,omitempty" yaml:"extents,omitempty"`
	Radius  float64           `json:"radius,omitempty" yaml:"radius,omitempty"`
}

func (o Obstacle) Shape() (geometry.Shape, error) {
	switch o.Kind {
	case Segment:
		if o.A == nil || o.B == nil {
			return nil, invalidDocument("segment requires a and b", o.ID)
		}
		return geometry.Segment{A: *o.A, B: *o.B}, nil

	case Box:
		if o.Center == nil || o.Extents == nil {
			return nil, invalidDocument("box requires center and extents", o.ID)
		}
		return geometry.Box{Center: *o.Center, Extents: *o.Extents}, nil

	case Circle:
		if o.Center == nil || o.Radius <= 0 {
			return nil, invalidDocument("circle requires center and a positive radius", o.ID)
		}
		return geometry.Circle{Center: *o.Center, Radius: o.Radius}, nil

	default:
		return nil, errors.New("unknown obstacle kind").
			WithType(ErrTypeInvalidSceneDocument).
			WithTag("ref", o.ID).
			WithTag("kind", o.Kind)
	}
}

// Target is an entity whose visibility gets reported.
type Target struct {
	Handle   string           `json:"handle" yaml:"handle"`
	Layer    int              `json:"layer,omitempty" yaml:"layer,omitempty"`
	Position geometry.Vector3 `json:"position" yaml:"position"`
	Radius   float64          `json:"radius,omitempty" yaml:"radius,omitempty"`
}

// Document is the serialized form of a scene.
type Document struct {
	Name           string     `json:"name,omitempty" yaml:"name,omitempty"`
	GridResolution float64    `json:"grid_resolution,omitempty" yaml:"grid_resolution,omitempty"`
	Obstacles      []Obstacle `json:"obstacles" yaml:"obstacles"`
	Targets        []Target   `json:"targets" yaml:"targets"`
}

// Validate checks what the schema can't: unique identifiers, finite numbers
// and buildable shapes.
func (d Document) Validate() error {
	ids := make(map[string]struct{}, len(d.Obstacles))
	for _, o := range d.Obstacles {
		if err := o.validate(); err != nil {
			return err
		}
		if _, ok := ids[o.ID]; ok {
			return invalidDocument("duplicate obstacle", o.ID)
		}
		ids[o.ID] = struct{}{}
	}

	handles := make(map[string]struct{}, len(d.Targets))
	for _, t := range d.Targets {
		if err := t.validate(); err != nil {
			return err
		}
		if _, ok := handles[t.Handle]; ok {
			return invalidDocument("duplicate target", t.Handle)
		}
		handles[t.Handle] = struct{}{}
	}
	return nil
}

func (o Obstacle) validate() error {
	if !IsValidRef(o.ID) {
		return invalidDocument("invalid obstacle id", o.ID)
	}
	if o.Layer < 0 || o.Layer > 31 {
		return invalidDocument("obstacle layer out of range", o.ID)
	}
	for _, v := range []*geometry.Vector3{o.A, o.B, o.Center, o.Extents} {
		if v != nil && !finiteVector(*v) {
			return invalidDocument("obstacle coordinates must be finite", o.ID)
		}
	}
	if math.IsNaN(o.Radius) || math.IsInf(o.Radius, 0) {
		return invalidDocument("obstacle radius must be finite", o.ID)
	}
	_, err := o.Shape()
	return err
}

func (t Target) validate() error {
	if !IsValidRef(t.Handle) {
		return invalidDocument("invalid target handle", t.Handle)
	}
	if t.Layer < 0 || t.Layer > 31 {
		return invalidDocument("target layer out of range", t.Handle)
	}
	if !finiteVector(t.Position) {
		return invalidDocument("target position must be finite", t.Handle)
	}
	if math.IsNaN(t.Radius) || math.IsInf(t.Radius, 0) || t.Radius < 0 {
		return invalidDocument("target radius must be finite and positive", t.Handle)
	}
	return nil
}

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf guesses a document format from a file or object name.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	default:
		return "", false
	}
}

// DecodeDocument parses and validates a scene document.
func DecodeDocument(data []byte, format Format) (Document, error) {
	var raw map[string]interface{}

	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, errors.New("decoding yaml scene document failed").
				WithType(ErrTypeInvalidSceneDocument).
				Wrap(err)
		}

		// Round trip through JSON so YAML and JSON documents share the
		// same schema and decoding rules.
		b, err := json.Marshal(raw)
		if err != nil {
			return Document{}, errors.New("converting yaml scene document failed").
				WithType(ErrTypeInvalidSceneDocument).
				Wrap(err)
		}
		data = b

	case JSON, "":
		if err := json.Unmarshal(data, &raw); err != nil {
			return Document{}, errors.New("decoding json scene document failed").
				WithType(ErrTypeInvalidSceneDocument).
				Wrap(err)
		}

	default:
		return Document{}, errors.New("unsupported scene document format").
			WithType(ErrTypeInvalidSceneDocument).
			WithTag("format", format)
	}

	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := validateSchema(raw); err != nil {
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, errors.New("decoding scene document failed").
			WithType(ErrTypeInvalidSceneDocument).
			Wrap(err)
	}
	return doc, doc.Validate()
}

// EncodeDocument serializes a document in the given format.
func EncodeDocument(doc Document, format Format) ([]byte, error) {
	if format == YAML {
		return yaml.Marshal(doc)
	}
	return json.Marshal(doc)
}

func validateSchema(raw map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.New("validating scene document failed").
			WithType(ErrTypeInvalidSceneDocument).
			Wrap(err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return errors.New("scene document does not match the schema").
			WithType(ErrTypeInvalidSceneDocument).
			WithTag("reasons", strings.Join(reasons, "; "))
	}
	return nil
}

func invalidDocument(msg string, ref string) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidSceneDocument).
		WithTag("ref", ref)
}

func finiteVector(v geometry.Vector3) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
