package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StartTransaction is accepted for call-site compatibility. Transactions
// are not supported: a warning is logged and nothing else happens.
func (s *Session) StartTransaction(ctx context.Context) error {
	s.log.WarnContext(ctx, "transactions are not supported, ignoring StartTransaction")
	return nil
}

// CommitTransaction logs a warning and does nothing.
func (s *Session) CommitTransaction(ctx context.Context) error {
	s.log.WarnContext(ctx, "transactions are not supported, ignoring CommitTransaction")
	return nil
}

// RollbackTransaction logs a warning and does nothing. Writes already
// made are not undone.
func (s *Session) RollbackTransaction(ctx context.Context) error {
	s.log.WarnContext(ctx, "transactions are not supported, ignoring RollbackTransaction")
	return nil
}

// TxBuilder assembles SurrealQL statements into one
// BEGIN/COMMIT TRANSACTION block, namespacing each statement's variables
// so they cannot collide ($doc -> $s2_doc).
//
// The SurrealDB driver uses it to write back multi-document updates in a
// single round trip.
type TxBuilder struct {
	statements []string
	vars       map[string]any
}

// NewTxBuilder creates a new transaction builder
func NewTxBuilder() *TxBuilder {
	return &TxBuilder{vars: make(map[string]any)}
}

// Add appends a statement. Variable names are rewritten longest first so a
// name that prefixes another ($id, $ids) is not clobbered.
func (tb *TxBuilder) Add(query string, vars map[string]any) {
	n := len(tb.statements) + 1

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		ns := fmt.Sprintf("s%d_%s", n, name)
		query = strings.ReplaceAll(query, "$"+name, "$"+ns)
		tb.vars[ns] = vars[name]
	}
	tb.statements = append(tb.statements, query)
}

// Len returns the number of statements added.
func (tb *TxBuilder) Len() int { return len(tb.statements) }

// Build returns the complete transaction query and merged variables
func (tb *TxBuilder) Build() (string, map[string]any) {
	if len(tb.statements) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("BEGIN TRANSACTION;\n")
	for _, stmt := range tb.statements {
		sb.WriteString(stmt)
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			sb.WriteString(";")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("COMMIT TRANSACTION;")

	return sb.String(), tb.vars
}
