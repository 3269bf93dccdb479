package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_CachesSessionPerCredentials(t *testing.T) {
	m := newMockManager(t, &mockDriver{})
	ctx, scope := m.Scope(context.Background())
	defer scope.Close(ctx)

	a := m.Session(ctx)
	b := m.Session(ctx)
	assert.Same(t, a, b, "same scope, same default session")

	other := scope.Session(Credentials{User: "reader", Password: "secret"}, false)
	assert.NotSame(t, a, other)
	assert.Same(t, other, scope.Session(Credentials{User: "reader", Password: "secret"}, false))
}

func TestScope_ReopenReplacesSession(t *testing.T) {
	m := newMockManager(t, &mockDriver{})
	ctx, scope := m.Scope(context.Background())
	defer scope.Close(ctx)

	first := scope.Default()
	require.NoError(t, first.StartBatch(ctx))
	assert.True(t, first.IsOpen())

	second := scope.Session(Credentials{}, true)
	assert.NotSame(t, first, second)
	assert.False(t, first.IsOpen(), "replaced session is closed")
	assert.Same(t, second, scope.Default())
}

func TestScope_CloseEndsUnfinishedBatch(t *testing.T) {
	d := &mockDriver{}
	m := newMockManager(t, d)
	ctx, scope := m.Scope(context.Background())

	sess := m.Session(ctx)
	require.NoError(t, sess.StartBatch(ctx))
	_, err := sess.Count(ctx, "product", nil)
	require.NoError(t, err)
	assert.True(t, sess.IsOpen())

	require.NoError(t, scope.Close(ctx))
	assert.False(t, sess.IsOpen())
	assert.Equal(t, 1, d.closes)
}

func TestManager_SessionWithoutScopeIsEphemeral(t *testing.T) {
	m := newMockManager(t, &mockDriver{})
	ctx := context.Background()

	assert.NotSame(t, m.Session(ctx), m.Session(ctx))
}

func TestScope_OtherManagerIgnored(t *testing.T) {
	m1 := newMockManager(t, &mockDriver{})
	m2 := newMockManager(t, &mockDriver{})
	ctx, scope := m1.Scope(context.Background())
	defer scope.Close(ctx)

	assert.NotSame(t, m2.Session(ctx), m2.Session(ctx))
}

func TestCredentialKey(t *testing.T) {
	a := credentialKey(Credentials{User: "ab", Password: "c"})
	b := credentialKey(Credentials{User: "a", Password: "bc"})
	assert.NotEqual(t, a, b)
}

func TestTxBuilder_NamespacesVariables(t *testing.T) {
	tb := NewTxBuilder()
	tb.Add("UPSERT type::thing($tb, $id) CONTENT $doc", map[string]any{"tb": "product", "id": "1", "doc": 1})
	tb.Add("UPSERT type::thing($tb, $id) CONTENT $doc", map[string]any{"tb": "product", "id": "2", "doc": 2})
	assert.Equal(t, 2, tb.Len())

	q, vars := tb.Build()
	assert.True(t, strings.HasPrefix(q, "BEGIN TRANSACTION;\n"))
	assert.True(t, strings.HasSuffix(q, "COMMIT TRANSACTION;"))
	assert.Contains(t, q, "UPSERT type::thing($s1_tb, $s1_id) CONTENT $s1_doc;")
	assert.Contains(t, q, "UPSERT type::thing($s2_tb, $s2_id) CONTENT $s2_doc;")
	assert.Equal(t, "2", vars["s2_id"])
	assert.Len(t, vars, 6)
}

func TestNewDriver(t *testing.T) {
	for _, name := range []string{DriverMongo, DriverSurrealDB, DriverBadger} {
		d, err := NewDriver(Config{Driver: name})
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}
	_, err := NewDriver(Config{Driver: "postgres"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseID(t *testing.T) {
	_, err := ParseID("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)

	id, err := ParseID("5f1b2c3d4e5f6a7b8c9d0e1f")
	require.NoError(t, err)
	assert.Equal(t, "5f1b2c3d4e5f6a7b8c9d0e1f", id.Hex())
}
