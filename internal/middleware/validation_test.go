package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTenantID(t *testing.T) {
	assert.NoError(t, ValidateTenantID("7"))
	assert.Error(t, ValidateTenantID(""))
	assert.Error(t, ValidateTenantID(strings.Repeat("x", 65)))
}

func TestParseInboxIDs(t *testing.T) {
	ids, err := ParseInboxIDs("3,9")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{3: true, 9: true}, ids)

	ids, err = ParseInboxIDs(" 3 , 9 ")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = ParseInboxIDs("")
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = ParseInboxIDs("3,banana")
	assert.Error(t, err)

	_, err = ParseInboxIDs("-1")
	assert.Error(t, err)
}

func TestParseConversationID(t *testing.T) {
	id, err := ParseConversationID("55")
	require.NoError(t, err)
	assert.Equal(t, 55, id)

	id, err = ParseConversationID("")
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	_, err = ParseConversationID("0")
	assert.Error(t, err)

	_, err = ParseConversationID("abc")
	assert.Error(t, err)
}

func TestParseAfterSequence(t *testing.T) {
	seq, err := ParseAfterSequence("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)

	seq, err = ParseAfterSequence("")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq)

	_, err = ParseAfterSequence("-1")
	assert.Error(t, err)
}
