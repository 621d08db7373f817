package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathString(t *testing.T) {
	tests := []struct {
		name string
		path Path
		want string
	}{
		{"top level key", Path{KeyElem("email")}, "email"},
		{"nested keys", Path{KeyElem("customer"), KeyElem("email")}, "customer.email"},
		{"array inside object", Path{KeyElem("contacts"), IndexElem(1), KeyElem("phone")}, "contacts[1].phone"},
		{"root array", Path{IndexElem(0), KeyElem("name")}, "[0].name"},
		{"nested arrays", Path{KeyElem("m"), IndexElem(0), IndexElem(2)}, "m[0][2]"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.path.String())
		})
	}
}

func TestPathLeaf(t *testing.T) {
	assert.Equal(t, "phone", Path{KeyElem("contacts"), IndexElem(1), KeyElem("phone")}.Leaf())
	assert.Equal(t, "tags", Path{KeyElem("tags"), IndexElem(3)}.Leaf())
	assert.Equal(t, "", Path{IndexElem(3)}.Leaf())
}

func TestPathCloneDoesNotAlias(t *testing.T) {
	p := Path{KeyElem("a"), KeyElem("b")}
	c := p.Clone()
	c[1] = KeyElem("z")
	assert.Equal(t, "a.b", p.String())
	assert.Equal(t, "a.z", c.String())
}

func TestParseStrategyKind(t *testing.T) {
	for _, name := range []string{"partial", "FULL", " hash ", "observe"} {
		_, err := ParseStrategyKind(name)
		require.NoError(t, err, name)
	}
	_, err := ParseStrategyKind("blur")
	require.Error(t, err)
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "PARTIAL(2,3,'*')", Partial(2, 3, '*').String())
	assert.Equal(t, "FULL", Full("[REDACTED]").String())
	assert.Equal(t, "HASH(default)", Hash("default").String())
	assert.Equal(t, "OBSERVE", Observe().String())
}

func TestSummaryCategoryCounts(t *testing.T) {
	s := Summary{Findings: []FindingSummary{
		{Path: "email", Category: CategoryEmail},
		{Path: "alt_email", Category: CategoryEmail},
		{Path: "phone", Category: CategoryPhone},
	}}
	assert.Equal(t, map[Category]int{CategoryEmail: 2, CategoryPhone: 1}, s.CategoryCounts())
	assert.False(t, s.Failed())
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryAadhaar.Valid())
	assert.True(t, CategoryGeneric.Valid())
	assert.False(t, Category("ssn").Valid())
}
