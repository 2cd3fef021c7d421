package mssql

import (
	"strconv"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
)

// quoteName brackets an identifier, escaping ] as ]], like QUOTENAME().
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// buildFullyQualifiedName returns [schema].[table], defaulting to dbo.
func buildFullyQualifiedName(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return quoteName(schema) + "." + quoteName(table)
}

// sharedTypeNames translates SQL Server type names into the vocabulary the
// postgres and sqlite adapters report, so type inference sees one set of names.
var sharedTypeNames = map[string]string{
	"INT":              "INTEGER",
	"DECIMAL":          "NUMERIC",
	"SMALLMONEY":       "MONEY",
	"FLOAT":            "DOUBLE PRECISION",
	"NCHAR":            "CHAR",
	"NVARCHAR":         "VARCHAR",
	"NTEXT":            "TEXT",
	"BINARY":           "BYTEA",
	"VARBINARY":        "BYTEA",
	"DATETIME":         "TIMESTAMP",
	"DATETIME2":        "TIMESTAMP",
	"SMALLDATETIME":    "TIMESTAMP",
	"DATETIMEOFFSET":   "TIMESTAMP WITH TIME ZONE",
	"BIT":              "BOOLEAN",
	"UNIQUEIDENTIFIER": "UUID",
}

// mapSQLServerType upper-cases the name and translates it; names with no
// translation pass through.
func mapSQLServerType(sqlServerType string) string {
	upper := strings.ToUpper(sqlServerType)
	if shared, ok := sharedTypeNames[upper]; ok {
		return shared
	}
	return upper
}

// textTypes come back from the driver as []byte holding text.
var textTypes = map[string]bool{
	"CHAR": true, "NCHAR": true, "VARCHAR": true, "NVARCHAR": true, "TEXT": true, "NTEXT": true,
}

// decimalTypes come back as []byte holding a decimal literal.
var decimalTypes = map[string]bool{
	"DECIMAL": true, "NUMERIC": true, "MONEY": true, "SMALLMONEY": true,
}

// normalizeValue converts driver values for a column of the given database
// type into plain Go values.
func normalizeValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	dbType = strings.ToUpper(dbType)
	switch {
	case textTypes[dbType]:
		return string(b)
	case decimalTypes[dbType]:
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
		return string(b)
	case dbType == "UNIQUEIDENTIFIER":
		var u mssqldb.UniqueIdentifier
		if err := u.Scan(b); err == nil {
			return u.String()
		}
		return string(b)
	default:
		return string(b)
	}
}
