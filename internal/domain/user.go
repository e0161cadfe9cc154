package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is a database record keyed by column name, as returned by sqlx MapScan.
// PII columns in a Row may hold ciphertext envelopes.
type Row map[string]any

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column as a string; nil and missing columns yield ""
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// User represents a storefront customer or administrator
type User struct {
	ID               int64      `json:"-" db:"id"`
	PublicUUID       string     `json:"-" db:"public_uuid"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	Name             string     `json:"name" db:"name"`
	Phone            string     `json:"phone" db:"phone"`
	CPF              string     `json:"cpf" db:"cpf"`
	Address          string     `json:"address" db:"address"`
	IsAdmin          bool       `json:"is_admin" db:"is_admin"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	TwoFactorEnabled bool       `json:"two_factor_enabled" db:"two_factor_enabled"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at" db:"email_verified_at"`
	LastLogin        *time.Time `json:"last_login" db:"last_login"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

// IsEmailVerified reports whether the user confirmed their email address
func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// DisplayName returns the name used in session claims
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// UserFromRow converts a users row into a User. It is the only place where
// heterogeneous column representations are normalized.
func UserFromRow(row Row) (*User, error) {
	id, err := ParseID(row["id"])
	if err != nil {
		return nil, fmt.Errorf("invalid id column: %w", err)
	}

	isAdmin, err := ParseFlag(row["is_admin"])
	if err != nil {
		return nil, fmt.Errorf("invalid is_admin column: %w", err)
	}

	isActive := true
	if raw, ok := row["is_active"]; ok {
		isActive, err = ParseFlag(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid is_active column: %w", err)
		}
	}

	twoFactor, err := ParseFlag(row["two_factor_enabled"])
	if err != nil {
		return nil, fmt.Errorf("invalid two_factor_enabled column: %w", err)
	}

	user := &User{
		ID:               id,
		PublicUUID:       row.String("public_uuid"),
		Email:            row.String("email"),
		PasswordHash:     row.String("password_hash"),
		Name:             row.String("name"),
		Phone:            row.String("phone"),
		CPF:              row.String("cpf"),
		Address:          row.String("address"),
		IsAdmin:          isAdmin,
		IsActive:         isActive,
		TwoFactorEnabled: twoFactor,
		EmailVerifiedAt:  parseTime(row["email_verified_at"]),
		LastLogin:        parseTime(row["last_login"]),
	}
	if created := parseTime(row["created_at"]); created != nil {
		user.CreatedAt = *created
	}

	return user, nil
}

// ParseID accepts the integer forms drivers return for BIGINT/SERIAL columns
func ParseID(v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case int32:
		return int64(id), nil
	case int:
		return int64(id), nil
	case []byte:
		return strconv.ParseInt(string(id), 10, 64)
	case string:
		return strconv.ParseInt(id, 10, 64)
	case nil:
		return 0, fmt.Errorf("id is null")
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}

// ParseFlag maps the boolean representations found in legacy rows to a bool.
// Integers: 1 true, 0 false. Strings: 1/true/t/yes/y/on true,
// 0/false/f/no/n/off/"" false. NULL is false. Everything else is an error.
func ParseFlag(v any) (bool, error) {
	switch f := v.(type) {
	case nil:
		return false, nil
	case bool:
		return f, nil
	case int64:
		return parseIntFlag(f)
	case int32:
		return parseIntFlag(int64(f))
	case int:
		return parseIntFlag(int64(f))
	case []byte:
		return parseStringFlag(string(f))
	case string:
		return parseStringFlag(f)
	default:
		return false, fmt.Errorf("unsupported flag type %T", v)
	}
}

func parseIntFlag(v int64) (bool, error) {
	switch v {
	case 1:
		return true, nil
	case 0:
		return false, nil
	}
	return false, fmt.Errorf("unsupported flag value %d", v)
}

func parseStringFlag(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("unsupported flag value %q", v)
}

func parseTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}
