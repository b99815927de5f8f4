package dynamics

import (
	"encoding/json"
	"strings"
)

// Token represents the JSON structure of the OAuth token response from Azure AD
type Token struct {
	TokenType    string      `json:"token_type"`
	ExpiresIn    json.Number `json:"expires_in"`
	ExtExpiresIn json.Number `json:"ext_expires_in"`
	AccessToken  string      `json:"access_token"`
}

// ConnectionContext holds everything needed to reach one Finance & Operations environment.
// Token, when set, is used as-is and no credentials grant is performed.
type ConnectionContext struct {
	TenantID     string
	BaseURL      string
	SystemURL    string
	ClientID     string
	ClientSecret string
	Token        string
}

// Normalize returns a copy with SystemURL defaulted to BaseURL and one trailing "/" removed from both.
func (c ConnectionContext) Normalize() ConnectionContext {
	if c.SystemURL == "" {
		c.SystemURL = c.BaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	c.SystemURL = strings.TrimSuffix(c.SystemURL, "/")
	return c
}

// EntityProperty is one field of a public entity.
type EntityProperty struct {
	Name        string `json:"Name"`
	TypeName    string `json:"TypeName"`
	DataType    string `json:"DataType"`
	LabelID     string `json:"LabelId"`
	IsKey       bool   `json:"IsKey"`
	IsMandatory bool   `json:"IsMandatory"`
}

// EntityMetadata is a single element of metadata/PublicEntities.
// Fields keeps the complete server document so nothing is lost when re-serialized.
type EntityMetadata struct {
	Name          string
	EntitySetName string
	LabelID       string
	IsReadOnly    bool
	Properties    []EntityProperty

	Fields map[string]any
}

func (e *EntityMetadata) UnmarshalJSON(data []byte) error {
	var known struct {
		Name          string           `json:"Name"`
		EntitySetName string           `json:"EntitySetName"`
		LabelID       string           `json:"LabelId"`
		IsReadOnly    bool             `json:"IsReadOnly"`
		Properties    []EntityProperty `json:"Properties"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = EntityMetadata{
		Name:          known.Name,
		EntitySetName: known.EntitySetName,
		LabelID:       known.LabelID,
		IsReadOnly:    known.IsReadOnly,
		Properties:    known.Properties,
		Fields:        fields,
	}
	return nil
}

func (e EntityMetadata) MarshalJSON() ([]byte, error) {
	if e.Fields != nil {
		return json.Marshal(e.Fields)
	}
	return json.Marshal(map[string]any{
		"Name":          e.Name,
		"EntitySetName": e.EntitySetName,
		"LabelId":       e.LabelID,
		"IsReadOnly":    e.IsReadOnly,
		"Properties":    e.Properties,
	})
}

// EntityName is the names-only projection of an entity.
type EntityName struct {
	DataEntityName string `json:"dataEntityName"`
	EntityName     string `json:"entityName"`
}

// EntityKeys lists the key properties of an entity.
type EntityKeys struct {
	Name          string   `json:"name"`
	EntitySetName string   `json:"entitySetName"`
	Keys          []string `json:"keys"`
}

// EnumMember is a single labelled value of a public enumeration.
type EnumMember struct {
	Name    string `json:"Name"`
	Value   int    `json:"Value"`
	LabelID string `json:"LabelId"`
}

// EnumMetadata is a single element of metadata/PublicEnumerations.
type EnumMetadata struct {
	Name    string       `json:"Name"`
	LabelID string       `json:"LabelId"`
	Members []EnumMember `json:"Members"`
}

// EnumValue is one flattened enum member.
type EnumValue struct {
	EnumName         string `json:"enumName"`
	EnumValueName    string `json:"enumValueName"`
	EnumIntValue     int    `json:"enumIntValue"`
	EnumValueLabelID string `json:"enumValueLabelId"`
}
