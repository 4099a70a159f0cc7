package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Position is a 2D layout coordinate. It carries no tree semantics.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// PositionSchema is the JSON schema every stored position must satisfy.
const PositionSchema = `{
  "type": "object",
  "required": ["x", "y"],
  "properties": {
    "x": {"type": "number"},
    "y": {"type": "number"}
  }
}`

var positionSchema = mustCompileSchema(PositionSchema)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// HasPosition reports whether raw carries a value at all. Absent and JSON null
// both mean "no position".
func HasPosition(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ParsePosition validates raw against PositionSchema and decodes it.
func ParsePosition(raw json.RawMessage) (*Position, error) {
	if !HasPosition(raw) {
		return nil, &ValidationError{Field: "position", Index: -1, Reason: "missing"}
	}
	result, err := positionSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &ValidationError{Field: "position", Index: -1, Reason: err.Error()}
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}
		return nil, &ValidationError{Field: "position", Index: -1, Reason: strings.Join(descs, "; ")}
	}

	var p Position
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Field: "position", Index: -1, Reason: err.Error()}
	}
	if math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return nil, &ValidationError{Field: "position", Index: -1, Reason: "coordinates must be finite"}
	}
	return &p, nil
}

// PositionUpdate assigns a validated position to a message.
type PositionUpdate struct {
	MessageID MessageID
	Position  Position
}

// PairPositions matches positions to messages by index: the i-th position goes to
// the i-th id. Only min(len(ids), len(positions)) pairs are considered; a
// malformed entry is reported in skipped and does not stop the batch.
func PairPositions(ids []MessageID, positions []json.RawMessage) (updates []PositionUpdate, skipped []*ValidationError) {
	n := min(len(ids), len(positions))
	updates = make([]PositionUpdate, 0, n)
	for i := 0; i < n; i++ {
		p, err := ParsePosition(positions[i])
		if err != nil {
			ve, ok := err.(*ValidationError)
			if !ok {
				ve = &ValidationError{Field: "positions", Reason: err.Error()}
			}
			ve.Field = "positions"
			ve.Index = i
			skipped = append(skipped, ve)
			continue
		}
		updates = append(updates, PositionUpdate{MessageID: ids[i], Position: *p})
	}
	return updates, skipped
}
