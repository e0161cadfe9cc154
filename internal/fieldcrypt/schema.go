package fieldcrypt

// Table lists the encrypted columns of one table
type Table struct {
	Fields     []string
	Searchable []string
}

// Schema maps table names to their encrypted columns
type Schema map[string]Table

// DefaultSchema returns the PII columns of the storefront tables
func DefaultSchema() Schema {
	return Schema{
		"users": {
			Fields:     []string{"name", "email", "phone", "cpf", "address"},
			Searchable: []string{"email"},
		},
		"orders": {
			Fields:     []string{"customer_name", "customer_email", "customer_phone", "customer_cpf", "shipping_address"},
			Searchable: []string{"customer_email"},
		},
	}
}

// Fields returns the encrypted columns of table
func (s Schema) Fields(table string) []string {
	return s[table].Fields
}

// IsEncrypted reports whether table.field is stored encrypted
func (s Schema) IsEncrypted(table, field string) bool {
	for _, f := range s[table].Fields {
		if f == field {
			return true
		}
	}
	return false
}

// IsSearchable reports whether table.field uses deterministic encryption
func (s Schema) IsSearchable(table, field string) bool {
	for _, f := range s[table].Searchable {
		if f == field {
			return true
		}
	}
	return false
}
