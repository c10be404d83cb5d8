package models

// MissingValue is stored for any expected column a source row does not carry.
const MissingValue = "N/A"

// NormalizedRecord is one source row after header canonicalization, ready for
// the bulk sink. Fields is keyed by canonical header name and always contains
// every header of the document contract.
type NormalizedRecord struct {
	DocumentID string            `bson:"documentId" json:"documentId"`
	Fields     map[string]string `bson:"fields" json:"fields"`
}
