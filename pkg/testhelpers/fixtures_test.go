package testhelpers

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteFixture(t *testing.T) {
	path := NewSQLiteFixture(t)

	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var customers, orders int
	require.NoError(t, db.Get(&customers, "SELECT COUNT(*) FROM customers"))
	require.NoError(t, db.Get(&orders, "SELECT COUNT(*) FROM orders"))
	assert.Equal(t, 10, customers)
	assert.Equal(t, 30, orders)

	var top []string
	require.NoError(t, db.Select(&top, "SELECT name FROM customers ORDER BY revenue DESC LIMIT 3"))
	assert.Equal(t, []string{"Stark Industries", "Hooli", "Tyrell Corp"}, top)
}
