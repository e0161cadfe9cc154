package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}

	assert.Equal(t, ups, downs)
}

func TestSchemaCoversStoredColumns(t *testing.T) {
	users, err := fs.ReadFile(files, "sql/000001_create_users.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"public_uuid", "email", "password_hash", "cpf", "is_admin", "two_factor_enabled", "email_verified_at"} {
		assert.Contains(t, string(users), col)
	}

	codes, err := fs.ReadFile(files, "sql/000003_create_two_factor_codes.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"email_hash", "session_token_hash", "code_hash", "used_at"} {
		assert.Contains(t, string(codes), col)
	}
}
