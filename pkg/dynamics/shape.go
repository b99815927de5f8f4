package dynamics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// OutputMode selects how a metadata document is reshaped.
type OutputMode int

// The zero value is ModeEntityList.
const (
	ModeEntityList OutputMode = iota
	ModeEntityNamesOnly
	ModeEntityKeys
	ModeEnumFlattened
	ModeRaw
)

func (m OutputMode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeEntityList:
		return "entity-list"
	case ModeEntityNamesOnly:
		return "entity-names"
	case ModeEntityKeys:
		return "entity-keys"
	case ModeEnumFlattened:
		return "enum-flattened"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ShapeOptions controls Shape.
type ShapeOptions struct {
	Mode   OutputMode
	AsJSON bool
}

// Result holds the output of Shape. Exactly one of the slices (or Raw) is populated, matching Mode.
// Document keeps the response body as received in raw mode. JSON is set when AsJSON was requested.
type Result struct {
	Mode     OutputMode
	Raw      map[string]any
	Document json.RawMessage
	Entities []EntityMetadata
	Names    []EntityName
	Keys     []EntityKeys
	Enums    []EnumValue
	JSON     string
}

// Value returns the structured payload for the result's mode.
func (r *Result) Value() any {
	switch r.Mode {
	case ModeRaw:
		return r.Raw
	case ModeEntityList:
		return r.Entities
	case ModeEntityNamesOnly:
		return r.Names
	case ModeEntityKeys:
		return r.Keys
	case ModeEnumFlattened:
		return r.Enums
	default:
		return nil
	}
}

// Len is the number of records in the result. A raw document counts as one.
func (r *Result) Len() int {
	switch r.Mode {
	case ModeRaw:
		return 1
	case ModeEntityList:
		return len(r.Entities)
	case ModeEntityNamesOnly:
		return len(r.Names)
	case ModeEntityKeys:
		return len(r.Keys)
	case ModeEnumFlattened:
		return len(r.Enums)
	default:
		return 0
	}
}

// Shape turns a raw OData metadata document into the requested output.
func Shape(raw []byte, opts ShapeOptions) (*Result, error) {
	result := &Result{Mode: opts.Mode}

	switch opts.Mode {
	case ModeRaw:
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, malformed(fmt.Errorf("decode document: %w", err))
		}
		result.Raw = doc
		result.Document = json.RawMessage(raw)

	case ModeEntityList, ModeEntityNamesOnly, ModeEntityKeys:
		var entities []EntityMetadata
		if err := decodeValue(raw, &entities); err != nil {
			return nil, err
		}
		SortEntities(entities)

		switch opts.Mode {
		case ModeEntityList:
			result.Entities = entities
		case ModeEntityNamesOnly:
			result.Names = make([]EntityName, 0, len(entities))
			for _, e := range entities {
				result.Names = append(result.Names, EntityName{DataEntityName: e.Name, EntityName: e.EntitySetName})
			}
		case ModeEntityKeys:
			result.Keys = make([]EntityKeys, 0, len(entities))
			for _, e := range entities {
				keys := make([]string, 0)
				for _, p := range e.Properties {
					if p.IsKey {
						keys = append(keys, p.Name)
					}
				}
				result.Keys = append(result.Keys, EntityKeys{Name: e.Name, EntitySetName: e.EntitySetName, Keys: keys})
			}
		}

	case ModeEnumFlattened:
		var enums []EnumMetadata
		if err := decodeValue(raw, &enums); err != nil {
			return nil, err
		}
		result.Enums = FlattenEnums(enums)

	default:
		return nil, &QueryError{Kind: ErrConfiguration, Err: fmt.Errorf("unknown output mode %v", opts.Mode)}
	}

	if opts.AsJSON && opts.Mode == ModeRaw {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return nil, malformed(err)
		}
		result.JSON = buf.String()
	} else if opts.AsJSON {
		data, err := json.MarshalIndent(result.Value(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s output: %w", opts.Mode, err)
		}
		result.JSON = string(data)
	}

	return result, nil
}

// SortEntities orders entities by Name using ordinal comparison.
func SortEntities(entities []EntityMetadata) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})
}

// FlattenEnums sorts enums by name and emits one record per member, members ordered by value.
func FlattenEnums(enums []EnumMetadata) []EnumValue {
	sorted := make([]EnumMetadata, len(enums))
	copy(sorted, enums)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	out := make([]EnumValue, 0)
	for _, enum := range sorted {
		members := make([]EnumMember, len(enum.Members))
		copy(members, enum.Members)
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Value < members[j].Value
		})
		for _, m := range members {
			out = append(out, EnumValue{
				EnumName:         enum.Name,
				EnumValueName:    m.Name,
				EnumIntValue:     m.Value,
				EnumValueLabelID: m.LabelID,
			})
		}
	}
	return out
}

// decodeValue extracts the "value" collection of an OData response into target.
func decodeValue(raw []byte, target any) error {
	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return malformed(fmt.Errorf("decode document: %w", err))
	}
	if len(envelope.Value) == 0 || string(envelope.Value) == "null" {
		return malformed(fmt.Errorf("response has no value collection"))
	}
	if err := json.Unmarshal(envelope.Value, target); err != nil {
		return malformed(fmt.Errorf("decode value collection: %w", err))
	}
	return nil
}

func malformed(err error) error {
	return &QueryError{Kind: ErrMalformedResponse, Err: err}
}
