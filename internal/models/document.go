package models

import "time"

// FieldDefinition is one column of a document contract.
type FieldDefinition struct {
	Name     string `bson:"name" json:"name"`
	Label    string `bson:"label" json:"label"`
	Type     string `bson:"type,omitempty" json:"type,omitempty"`
	Required bool   `bson:"required,omitempty" json:"required,omitempty"`
}

// DocumentDefinition is the stored contract a bulk file must satisfy: the set
// of headers every uploaded file for this document is expected to carry.
type DocumentDefinition struct {
	ID        string            `bson:"_id" json:"id"`
	Name      string            `bson:"name" json:"name"`
	Fields    []FieldDefinition `bson:"fields" json:"fields"`
	CreatedAt time.Time         `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time         `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// HeaderLabels returns the raw header labels of the contract, in field order.
func (d *DocumentDefinition) HeaderLabels() []string {
	labels := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		labels = append(labels, f.Label)
	}
	return labels
}
