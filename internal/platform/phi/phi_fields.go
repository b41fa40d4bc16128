package phi

// FieldClassification lists, for one entity, the logical fields that carry PHI.
// Encrypted fields must be written through a sealing value type and are never
// stored as plaintext. Sensitive fields are stored in the clear but must not
// appear in logs or error messages.
type FieldClassification struct {
	Entity    string
	Encrypted []string
	Sensitive []string
}

// DefaultClassifications returns the PHI classification for the entities the
// engine persists.
func DefaultClassifications() []FieldClassification {
	return []FieldClassification{
		{
			Entity:    "patient",
			Encrypted: []string{"ssn"},
			Sensitive: []string{"firstName", "lastName", "dateOfBirth", "email", "phone", "ssnLastFour"},
		},
		{
			Entity:    "encounter",
			Sensitive: []string{"chiefComplaint", "vitals"},
		},
		{
			Entity:    "notification",
			Sensitive: []string{"message", "payload"},
		},
		{
			Entity:    "user",
			Sensitive: []string{"email", "phone"},
		},
		{
			Entity:    "meeting",
			Sensitive: []string{"metadata"},
		},
	}
}

// Registry answers classification lookups. The zero value classifies nothing.
type Registry struct {
	encrypted map[string]bool
	sensitive map[string]bool
}

// NewRegistry indexes the given classifications by "<entity>.<field>".
func NewRegistry(classes []FieldClassification) *Registry {
	r := &Registry{
		encrypted: make(map[string]bool),
		sensitive: make(map[string]bool),
	}
	for _, c := range classes {
		for _, f := range c.Encrypted {
			r.encrypted[c.Entity+"."+f] = true
			r.sensitive[c.Entity+"."+f] = true
		}
		for _, f := range c.Sensitive {
			r.sensitive[c.Entity+"."+f] = true
		}
	}
	return r
}

// DefaultRegistry is built from DefaultClassifications.
var DefaultRegistry = NewRegistry(DefaultClassifications())

// IsEncrypted reports whether entity.field must be stored encrypted.
func (r *Registry) IsEncrypted(entity, field string) bool {
	if r == nil {
		return false
	}
	return r.encrypted[entity+"."+field]
}

// IsSensitive reports whether entity.field must be kept out of logs.
func (r *Registry) IsSensitive(entity, field string) bool {
	if r == nil {
		return false
	}
	return r.sensitive[entity+"."+field]
}

// EncryptedFields returns the encrypted fields registered for entity.
func (r *Registry) EncryptedFields(entity string) []string {
	if r == nil {
		return nil
	}
	prefix := entity + "."
	var out []string
	for key := range r.encrypted {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, key[len(prefix):])
		}
	}
	return out
}
