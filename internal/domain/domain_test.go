package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  Alice@Example.COM ", "alice@example.com", false},
		{"a@x.com", "a@x.com", false},
		{"", "", true},
		{"no-at-sign.com", "", true},
		{"a@nodot", "", true},
		{"a b@x.com", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateEmail("email", tt.in)
		if tt.wantErr {
			var verr *ValidationError
			require.Error(t, err, tt.in)
			assert.True(t, errors.As(err, &verr), "expected ValidationError for %q", tt.in)
			assert.Equal(t, "email", verr.Field)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestLocations_CopiesInput(t *testing.T) {
	src := []EgressLocation{{ID: "L1", Name: "US"}, {ID: "L2", Name: "EU"}}
	locs := NewLocations(src)
	src[0].Name = "mutated"

	all := locs.All()
	assert.Equal(t, "US", all[0].Name)
	all[1].Name = "mutated"
	loc, ok := locs.Find("L2")
	require.True(t, ok)
	assert.Equal(t, "EU", loc.Name)

	_, ok = locs.Find("L3")
	assert.False(t, ok)
	assert.Equal(t, 2, locs.Len())
}

func TestMembershipSnapshot_Degraded(t *testing.T) {
	snap := MembershipSnapshot{
		"L1": {Name: "US", Emails: []string{"a@x.com"}},
	}
	assert.False(t, snap.Degraded())
	assert.True(t, snap["L1"].Contains("a@x.com"))
	assert.False(t, snap["L1"].Contains("A@x.com"))

	snap["L2"] = ListMembership{Name: "EU", Emails: []string{}, Degraded: true}
	assert.True(t, snap.Degraded())
}

func TestAuditAction_Valid(t *testing.T) {
	assert.True(t, ActionSelect.Valid())
	assert.True(t, ActionAdminRemove.Valid())
	assert.False(t, AuditAction("delete").Valid())
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	require.NotNil(t, StringPtr("EU"))
	assert.Equal(t, "EU", *StringPtr("EU"))
}
