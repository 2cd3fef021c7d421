// Package testhelpers provides fixture databases for testing ekaya-analyst components.
package testhelpers

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Customer is one row of the customers fixture table.
type Customer struct {
	ID      int
	Name    string
	City    string
	Segment string
	Revenue float64
}

// Customers is the fixture data, in id order. Revenue values are distinct so
// ranking queries have a single correct answer.
var Customers = []Customer{
	{1, "Acme Corp", "Berlin", "enterprise", 125000},
	{2, "Globex", "Paris", "mid-market", 98000},
	{3, "Initech", "Austin", "mid-market", 143500},
	{4, "Umbrella", "London", "enterprise", 87000},
	{5, "Hooli", "San Francisco", "enterprise", 210000},
	{6, "Stark Industries", "New York", "enterprise", 305000},
	{7, "Wayne Enterprises", "Chicago", "enterprise", 99000},
	{8, "Wonka Industries", "London", "smb", 45000},
	{9, "Tyrell Corp", "Los Angeles", "mid-market", 178000},
	{10, "Cyberdyne", "Austin", "smb", 66000},
}

// SchemaSQL creates the fixture tables. It is portable across SQLite and
// PostgreSQL.
var SchemaSQL = []string{
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		city VARCHAR(100) NOT NULL,
		segment VARCHAR(50) NOT NULL,
		revenue NUMERIC(12, 2) NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		amount NUMERIC(12, 2) NOT NULL,
		placed_at DATE NOT NULL
	)`,
}

// orderRows returns three orders per customer spread over 2024.
func orderRows() [][]any {
	var rows [][]any
	id := 1
	for _, c := range Customers {
		for m := 1; m <= 3; m++ {
			rows = append(rows, []any{id, c.ID, c.Revenue / 100 * float64(m), dateFor(m * c.ID)})
			id++
		}
	}
	return rows
}

func dateFor(n int) string {
	return fmt.Sprintf("2024-%02d-%02d", n%12+1, n%27+1)
}

// NewSQLiteFixture writes a fresh fixture database into the test's temp dir and
// returns its path.
func NewSQLiteFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	if err := seed(db); err != nil {
		t.Fatalf("seed fixture database: %v", err)
	}
	return path
}

// seed creates and fills the fixture tables using ? placeholders, rebinding
// for the driver in use.
func seed(db *sqlx.DB) error {
	for _, stmt := range SchemaSQL {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	insertCustomer := db.Rebind(`INSERT INTO customers (id, name, city, segment, revenue) VALUES (?, ?, ?, ?, ?)`)
	for _, c := range Customers {
		if _, err := db.Exec(insertCustomer, c.ID, c.Name, c.City, c.Segment, c.Revenue); err != nil {
			return err
		}
	}

	insertOrder := db.Rebind(`INSERT INTO orders (id, customer_id, amount, placed_at) VALUES (?, ?, ?, ?)`)
	for _, o := range orderRows() {
		if _, err := db.Exec(insertOrder, o...); err != nil {
			return err
		}
	}
	return nil
}
