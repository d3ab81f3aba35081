package types

import (
	"encoding/json"
	"fmt"
)

type (
	GenericMetadata    map[string]any
	MultilingualString map[string]string
)

// MarshalJSON implements json.Marshaler interface for GenericMetadata
// Returns an empty object {} instead of null when the map is nil or empty
func (g GenericMetadata) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("{}"), nil
	}
	// Normalize nested maps to plain map[string]any
	normalized := normalizeMaps(map[string]any(g))
	return json.Marshal(normalized)
}

func normalizeMaps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case GenericMetadata:
			out[k] = normalizeMaps(map[string]any(val))
		case map[string]any:
			out[k] = normalizeMaps(val)
		default:
			out[k] = v
		}
	}
	return out
}

func (g *GenericMetadata) UnmarshalJSON(data []byte) error {
	if g == nil {
		return fmt.Errorf("GenericMetadata: nil receiver")
	}

	// First unmarshal into a plain map
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*g = convertToGenericMetadata(raw)
	return nil
}

func convertToGenericMetadata(m map[string]interface{}) GenericMetadata {
	out := make(GenericMetadata, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = convertToGenericMetadata(vv)
		default:
			out[k] = v
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler interface for MultilingualString
// Returns an empty object {} instead of null when the map is nil or empty
func (m MultilingualString) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	// Use the default map marshaling behavior
	return json.Marshal(map[string]string(m))
}

type MediaMetadata struct {
	Header string `json:"header" cbor:"0,keyasint,omitempty"`
	Logo   string `json:"logo"   cbor:"1,keyasint,omitempty"`
}

// ChoiceMetadata enriches one poll option with display information. Value is
// the option index the choice refers to.
type ChoiceMetadata struct {
	Title MultilingualString `json:"title" cbor:"0,keyasint,omitempty"`
	Value int                `json:"value" cbor:"1,keyasint,omitempty"`
	Meta  GenericMetadata    `json:"meta"  cbor:"2,keyasint,omitempty"`
}

// Metadata is the off-state descriptive document of a poll, stored by content
// address and referenced from the poll via MetadataURI.
type Metadata struct {
	Title       MultilingualString `json:"title"       cbor:"0,keyasint,omitempty"`
	Description MultilingualString `json:"description" cbor:"1,keyasint,omitempty"`
	Media       MediaMetadata      `json:"media"       cbor:"2,keyasint,omitempty"`
	Choices     []ChoiceMetadata   `json:"choices"     cbor:"3,keyasint,omitempty"`
	Version     string             `json:"version"     cbor:"4,keyasint,omitempty"`
	Meta        GenericMetadata    `json:"meta"        cbor:"5,keyasint,omitempty"`
}

func (m *Metadata) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}
