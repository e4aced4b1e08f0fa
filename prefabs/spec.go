package prefabs

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

const (
	BlockPrefab     = "block.yaml"
	FloorPrefab     = "floor.yaml"
	MergeTuningFile = "merge.yaml"
)

func LoadSpec[T any](filename string) (T, error) {
	var zero T
	data, err := Load(filename)
	if err != nil {
		return zero, fmt.Errorf("prefabs: load %s: %w", filename, err)
	}

	var spec T
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return zero, fmt.Errorf("prefabs: unmarshal %s: %w", filename, err)
	}

	return spec, nil
}

// MergeTuningSpec holds the adjacency tolerances and physics step settings.
type MergeTuningSpec struct {
	Name      string        `yaml:"name"`
	Tolerance ToleranceSpec `yaml:"tolerance"`
	Physics   PhysicsTuning `yaml:"physics"`
	Debug     bool          `yaml:"debug"`
}

type ToleranceSpec struct {
	MinAlong   float64 `yaml:"min_along"`
	MaxAlong   float64 `yaml:"max_along"`
	MaxLateral float64 `yaml:"max_lateral"`
}

var ErrInvalidTuning = errors.New("prefabs: invalid merge tuning")

// DefaultTolerance is used for every tolerance field left unset.
var DefaultTolerance = ToleranceSpec{MinAlong: 0.9, MaxAlong: 1.1, MaxLateral: 0.75}

// WithDefaults fills each zero field from DefaultTolerance.
func (t ToleranceSpec) WithDefaults() ToleranceSpec {
	if t.MinAlong == 0 {
		t.MinAlong = DefaultTolerance.MinAlong
	}
	if t.MaxAlong == 0 {
		t.MaxAlong = DefaultTolerance.MaxAlong
	}
	if t.MaxLateral == 0 {
		t.MaxLateral = DefaultTolerance.MaxLateral
	}
	return t
}

func (t ToleranceSpec) Validate() error {
	if !(t.MinAlong > 0) || !(t.MaxAlong > 0) || !(t.MaxLateral > 0) {
		return fmt.Errorf("%w: tolerances must be positive, got %+v", ErrInvalidTuning, t)
	}
	if t.MinAlong > t.MaxAlong {
		return fmt.Errorf("%w: min_along %v exceeds max_along %v", ErrInvalidTuning, t.MinAlong, t.MaxAlong)
	}
	return nil
}

type PhysicsTuning struct {
	Gravity      float64 `yaml:"gravity"`
	Iterations   int     `yaml:"iterations"`
	Step         float64 `yaml:"step"`
	DepthEpsilon float64 `yaml:"depth_epsilon"`
	Density      float64 `yaml:"density"`
}

func LoadMergeTuning() (*MergeTuningSpec, error) {
	spec, err := LoadSpec[MergeTuningSpec](MergeTuningFile)
	if err != nil {
		return nil, err
	}
	spec.Tolerance = spec.Tolerance.WithDefaults()
	if err := spec.Tolerance.Validate(); err != nil {
		return nil, fmt.Errorf("prefabs: %s: %w", MergeTuningFile, err)
	}
	if spec.Physics.Iterations <= 0 {
		spec.Physics.Iterations = 20
	}
	if spec.Physics.Step <= 0 {
		spec.Physics.Step = 1.0 / 60.0
	}
	if spec.Physics.Density <= 0 {
		spec.Physics.Density = 1
	}
	return &spec, nil
}

// Vec3Spec is a YAML friendly 3D vector.
type Vec3Spec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (v Vec3Spec) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func Vec3SpecOf(v mgl64.Vec3) Vec3Spec {
	return Vec3Spec{X: v.X(), Y: v.Y(), Z: v.Z()}
}

// SceneSpec describes the initial contents of a world.
type SceneSpec struct {
	Name       string                `yaml:"name"`
	Materials  map[string]*YAMLColor `yaml:"materials,omitempty"`
	Floors     []PlacementSpec       `yaml:"floors,omitempty"`
	Blocks     []PlacementSpec       `yaml:"blocks,omitempty"`
	Generators []GeneratorSpec       `yaml:"generators,omitempty"`
}

// PlacementSpec places one prefab instance. Size falls back to the prefab scale.
type PlacementSpec struct {
	Prefab   string    `yaml:"prefab,omitempty"`
	Position Vec3Spec  `yaml:"position"`
	Size     *Vec3Spec `yaml:"size,omitempty"`
	Velocity *Vec3Spec `yaml:"velocity,omitempty"`
	Material string    `yaml:"material,omitempty"`
}

// GeneratorSpec runs a tengo script that appends block placements.
type GeneratorSpec struct {
	Script string         `yaml:"script"`
	Params map[string]any `yaml:"params,omitempty"`
}

type YAMLColor struct {
	color.Color
}

func (c *YAMLColor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("color must be a string")
	}

	s := strings.TrimPrefix(value.Value, "#")

	if len(s) != 6 && len(s) != 8 {
		return fmt.Errorf("invalid color format: %s", value.Value)
	}

	parse := func(start int) (uint8, error) {
		v, err := strconv.ParseUint(s[start:start+2], 16, 8)
		return uint8(v), err
	}

	r, err := parse(0)
	if err != nil {
		return err
	}
	g, err := parse(2)
	if err != nil {
		return err
	}
	b, err := parse(4)
	if err != nil {
		return err
	}

	a := uint8(255)
	if len(s) == 8 {
		a, err = parse(6)
		if err != nil {
			return err
		}
	}

	c.Color = color.NRGBA{R: r, G: g, B: b, A: a}
	return nil
}

func (c YAMLColor) MarshalYAML() (any, error) {
	n := c.NRGBA()
	if n.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B), nil
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A), nil
}

// NRGBA returns the color as non-premultiplied RGBA, white when unset.
func (c YAMLColor) NRGBA() color.NRGBA {
	if c.Color == nil {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.NRGBAModel.Convert(c.Color).(color.NRGBA)
}
