package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_FlattensEmbeddedField(t *testing.T) {
	c := Codec{}
	b, err := c.Marshal(&CreateDataItemRequest{RoleID: "r1", Field: Field{Type: "note", Value: "v"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roleId":"r1","type":"note","value":"v"}`, string(b))

	var out CreateDataItemRequest
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, "note", out.Type)
}

func TestCodec_EmptyPayload(t *testing.T) {
	var e Empty
	assert.NoError(t, Codec{}.Unmarshal(nil, &e))
	assert.Error(t, Codec{}.Unmarshal([]byte("{"), &e))
	assert.Equal(t, "json", Codec{}.Name())
}

func TestPublicMethods(t *testing.T) {
	assert.Equal(t, "/recreatio.v1.Vault/Login", FullMethod(MethodLogin))
	assert.True(t, Public(MethodRegister))
	assert.True(t, Public(MethodGetSalt))
	assert.False(t, Public(MethodLogout))
	assert.False(t, Public(MethodListRoles))
}
