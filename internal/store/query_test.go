package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFilter_Insensitive(t *testing.T) {
	b := &sqlBuilder{}
	f := &StringFilter{Equals: PtrTo("Alice"), Insensitive: true}

	sql := f.sql(b, "users.username")

	assert.Equal(t, "LOWER(users.username) = LOWER($1)", sql)
	assert.Equal(t, []any{"Alice"}, b.args)
}

func TestStringFilter_ContainsEscapesWildcards(t *testing.T) {
	b := &sqlBuilder{}
	f := &StringFilter{Contains: PtrTo("50%_off")}

	sql := f.sql(b, "products.name")

	assert.Equal(t, "products.name LIKE $1", sql)
	assert.Equal(t, []any{`%50\%\_off%`}, b.args)
}

func TestStringFilter_IsNull(t *testing.T) {
	b := &sqlBuilder{}

	assert.Equal(t, "products.category_id IS NULL",
		(&StringFilter{IsNull: PtrTo(true)}).sql(b, "products.category_id"))
	assert.Equal(t, "products.category_id IS NOT NULL",
		(&StringFilter{IsNull: PtrTo(false)}).sql(b, "products.category_id"))
	assert.Empty(t, b.args)
}

func TestUserFilter_NestedBool(t *testing.T) {
	b := &sqlBuilder{}
	f := &UserFilter{
		Or: []UserFilter{
			{Username: &StringFilter{Equals: PtrTo("alice")}},
			{Username: &StringFilter{Equals: PtrTo("bob")}},
		},
		Not: []UserFilter{
			{Gender: &StringFilter{IsNull: PtrTo(true)}},
		},
	}

	sql := f.sql(b, "users")

	assert.Equal(t, "((users.username = $1 OR users.username = $2) AND NOT (users.gender IS NULL))", sql)
	assert.Equal(t, []any{"alice", "bob"}, b.args)
}

func TestListQuery_DefaultOrderIsIDAscending(t *testing.T) {
	b := &sqlBuilder{}
	q, reversed, err := listQuery{
		table: "colours", selects: colourColumns, cols: colourCols,
	}.build("ListColours", b)

	require.NoError(t, err)
	assert.False(t, reversed)
	assert.Equal(t, "SELECT "+colourColumns+" FROM colours ORDER BY colours.id ASC", q)
}

func TestListQuery_CursorForward(t *testing.T) {
	b := &sqlBuilder{}
	q, reversed, err := listQuery{
		table: "products", selects: "id", cols: productCols,
		orderBy: []Order{{Field: "price", Desc: true}},
		cursor:  PtrTo("p5"), take: 3,
	}.build("ListProducts", b)

	require.NoError(t, err)
	assert.False(t, reversed)
	assert.Equal(t,
		"SELECT id FROM products WHERE (products.price, products.id) <= (SELECT products.price, products.id FROM products WHERE products.id = $1) ORDER BY products.price DESC, products.id DESC LIMIT $2",
		q)
	assert.Equal(t, []any{"p5", 3}, b.args)
}

func TestListQuery_CursorIgnoresOffset(t *testing.T) {
	b := &sqlBuilder{}
	q, _, err := listQuery{
		table: "products", selects: "id", cols: productCols,
		cursor: PtrTo("p5"), take: 3, offset: 10,
	}.build("ListProducts", b)

	require.NoError(t, err)
	assert.NotContains(t, q, "OFFSET", "cursor pagination replaces offset windowing")
}

func TestListQuery_UnknownOrderField(t *testing.T) {
	b := &sqlBuilder{}
	_, _, err := listQuery{
		table: "products", selects: "id", cols: productCols,
		orderBy: []Order{{Field: "popularity"}},
	}.build("ListProducts", b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot order by "popularity"`)
}

func TestListQuery_NullsOrdering(t *testing.T) {
	b := &sqlBuilder{}
	q, _, err := listQuery{
		table: "users", selects: "id", cols: userCols,
		orderBy: []Order{{Field: "birth", Desc: true, NullsFirst: PtrTo(false)}},
	}.build("ListUsers", b)

	require.NoError(t, err)
	assert.Contains(t, q, "ORDER BY users.birth DESC NULLS LAST, users.id DESC")
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\\b\%c\_d`, escapeLike(`a\b%c_d`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestSetBuilderAlwaysRefreshesUpdatedAt(t *testing.T) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	sb.set("name", "x")

	assert.Equal(t, "name = $1, updated_at = now()", sb.clause())
}
