// Package codec serializes request and result envelopes for the
// out-of-process presentation strategy. The wire format is versioned JSON
// with every value carried as a tagged union, so integers, floats, empty
// strings, empty lists, and the failure variant all round-trip exactly.
package codec

import (
	"encoding/json"
	"fmt"

	"parley/internal/envelope"
)

// Version is the current wire format version. Decoders reject anything else.
const Version = 1

// DecodeError reports bytes that do not parse as a valid envelope. It is a
// distinct type so transport-level corruption is never confused with a
// legitimate error result.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string {
	return "decode envelope: " + e.Msg
}

func decodeErrf(format string, args ...any) *DecodeError {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// wireValue is a self-describing scalar or sequence.
type wireValue struct {
	Type  string   `json:"type"`
	Str   string   `json:"str"`
	Int   int64    `json:"int"`
	Float float64  `json:"float"`
	Bool  bool     `json:"bool"`
	List  []string `json:"list"`
}

const (
	typeNull    = "null"
	typeString  = "string"
	typeInt     = "int"
	typeFloat   = "float"
	typeBool    = "bool"
	typeStrings = "strings"
)

func encodeValue(v any) (wireValue, error) {
	switch val := v.(type) {
	case nil:
		return wireValue{Type: typeNull}, nil
	case string:
		return wireValue{Type: typeString, Str: val}, nil
	case int64:
		return wireValue{Type: typeInt, Int: val}, nil
	case int:
		return wireValue{Type: typeInt, Int: int64(val)}, nil
	case float64:
		return wireValue{Type: typeFloat, Float: val}, nil
	case bool:
		return wireValue{Type: typeBool, Bool: val}, nil
	case []string:
		list := val
		if list == nil {
			list = []string{}
		}
		return wireValue{Type: typeStrings, List: list}, nil
	default:
		return wireValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func decodeValue(w wireValue) (any, error) {
	switch w.Type {
	case typeNull:
		return nil, nil
	case typeString:
		return w.Str, nil
	case typeInt:
		return w.Int, nil
	case typeFloat:
		return w.Float, nil
	case typeBool:
		return w.Bool, nil
	case typeStrings:
		if w.List == nil {
			return []string{}, nil
		}
		return w.List, nil
	default:
		return nil, decodeErrf("unknown value type %q", w.Type)
	}
}

type wireRequest struct {
	Version int                  `json:"v"`
	Kind    string               `json:"kind"`
	Params  map[string]wireValue `json:"params"`
}

type wireFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type wireResult struct {
	Version   int          `json:"v"`
	Value     *wireValue   `json:"value,omitempty"`
	Cancelled bool         `json:"cancelled,omitempty"`
	Failure   *wireFailure `json:"failure,omitempty"`
}

// EncodeRequest serializes a request envelope.
func EncodeRequest(req envelope.Request) ([]byte, error) {
	params := make(map[string]wireValue, len(req.Params))
	for k, v := range req.Params {
		wv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("encode request param %q: %w", k, err)
		}
		params[k] = wv
	}
	return json.Marshal(wireRequest{
		Version: Version,
		Kind:    string(req.Kind),
		Params:  params,
	})
}

// DecodeRequest parses a request envelope, re-validating it on the way in so
// a malformed request is rejected on whichever side of the pipe it appears.
func DecodeRequest(data []byte) (envelope.Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return envelope.Request{}, decodeErrf("malformed request: %v", err)
	}
	if w.Version != Version {
		return envelope.Request{}, decodeErrf("unsupported request version %d", w.Version)
	}
	params := make(map[string]any, len(w.Params))
	for k, wv := range w.Params {
		v, err := decodeValue(wv)
		if err != nil {
			return envelope.Request{}, decodeErrf("request param %q: %v", k, err)
		}
		params[k] = v
	}
	req, err := envelope.New(envelope.Kind(w.Kind), params)
	if err != nil {
		return envelope.Request{}, decodeErrf("%v", err)
	}
	return req, nil
}

// EncodeResult serializes a result envelope. Invalid results (violating the
// one-of invariant) are rejected before they can reach the wire.
func EncodeResult(res envelope.Result) ([]byte, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	w := wireResult{Version: Version, Cancelled: res.Cancelled}
	if res.HasValue {
		wv, err := encodeValue(res.Value)
		if err != nil {
			return nil, fmt.Errorf("encode result value: %w", err)
		}
		w.Value = &wv
	}
	if res.Failure != nil {
		w.Failure = &wireFailure{
			Kind:    string(res.Failure.Kind),
			Message: res.Failure.Message,
		}
	}
	return json.Marshal(w)
}

// DecodeResult parses a result envelope.
func DecodeResult(data []byte) (envelope.Result, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return envelope.Result{}, decodeErrf("malformed result: %v", err)
	}
	if w.Version != Version {
		return envelope.Result{}, decodeErrf("unsupported result version %d", w.Version)
	}
	var res envelope.Result
	res.Cancelled = w.Cancelled
	if w.Value != nil {
		v, err := decodeValue(*w.Value)
		if err != nil {
			return envelope.Result{}, decodeErrf("result value: %v", err)
		}
		res.Value = v
		res.HasValue = true
	}
	if w.Failure != nil {
		res.Failure = &envelope.Failure{
			Kind:    envelope.FailureKind(w.Failure.Kind),
			Message: w.Failure.Message,
		}
	}
	if err := res.Validate(); err != nil {
		return envelope.Result{}, decodeErrf("%v", err)
	}
	return res, nil
}
