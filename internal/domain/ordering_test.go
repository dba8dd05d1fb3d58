package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeKey(t *testing.T) {
	f := Family{Name: "category", Table: "category", SeqColumn: "seq"}

	scope := f.Scope(
		ScopeCond{Column: "parent_id"},
		ScopeCond{Column: "type", Value: "audio"},
		ScopeCond{Column: "language", Value: "id"},
	)
	assert.Equal(t, `category|parent_id is null|type="audio"|language="id"`, scope.Key())

	withID := f.Scope(ScopeCond{Column: "parent_id", Value: int64(3)})
	assert.Equal(t, "category|parent_id=3", withID.Key())

	global := Family{Name: "topic3_content_category", Table: "topics3_content_category"}.Scope()
	assert.Equal(t, "topics3_content_category", global.Key())
}

func TestScopeKeySeparatorsInValues(t *testing.T) {
	f := Family{Name: "category", Table: "category", SeqColumn: "seq"}

	// without quoting both would read category|type=a|language=b|language=c
	smuggled := f.Scope(
		ScopeCond{Column: "type", Value: "a|language=b"},
		ScopeCond{Column: "language", Value: "c"},
	)
	plain := f.Scope(
		ScopeCond{Column: "type", Value: "a"},
		ScopeCond{Column: "language", Value: "b|language=c"},
	)
	assert.NotEqual(t, smuggled.Key(), plain.Key())

	nullLike := f.Scope(ScopeCond{Column: "type", Value: " is null"})
	null := f.Scope(ScopeCond{Column: "type"})
	assert.NotEqual(t, nullLike.Key(), null.Key())
}
