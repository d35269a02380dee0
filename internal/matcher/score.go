package matcher

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnknownShape means the response carries none of the known score fields.
var ErrUnknownShape = errors.New("unknown similarity response shape")

// ScoreShape tells which field a score was read from.
type ScoreShape int

const (
	ShapeUnknown ScoreShape = iota
	// ShapeNested is {"data": {"similarity": x}}.
	ShapeNested
	// ShapeSimilarity is {"similarity": x}.
	ShapeSimilarity
	// ShapeScore is {"score": x}.
	ShapeScore
)

func (s ScoreShape) String() string {
	switch s {
	case ShapeNested:
		return "data.similarity"
	case ShapeSimilarity:
		return "similarity"
	case ShapeScore:
		return "score"
	default:
		return "unknown"
	}
}

// Score is a decoded scoring response. Value is nil when the backend sent an explicit null.
type Score struct {
	Value *float64
	Shape ScoreShape
}

// Probing order matters: the first present field wins.
var scoreShapes = []ScoreShape{ShapeNested, ShapeSimilarity, ShapeScore}

// DecodeScore reads the similarity score out of a scoring response body.
// Range is not validated.
func DecodeScore(body []byte) (Score, error) {
	if !gjson.ValidBytes(body) {
		return Score{}, fmt.Errorf("decode similarity response: invalid json")
	}

	for _, shape := range scoreShapes {
		res := gjson.GetBytes(body, shape.String())
		if !res.Exists() {
			continue
		}

		value, err := scoreValue(res)
		if err != nil {
			return Score{Shape: shape}, fmt.Errorf("decode %s: %w", shape, err)
		}

		return Score{Value: value, Shape: shape}, nil
	}

	return Score{}, ErrUnknownShape
}

func scoreValue(res gjson.Result) (*float64, error) {
	switch res.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		v := res.Num
		return &v, nil
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(res.Str), 64)
		if err != nil {
			return nil, fmt.Errorf("score %q is not a number", res.Str)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("unsupported score value %s", res.Raw)
	}
}
