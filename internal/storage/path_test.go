package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsContainer(t *testing.T) {
	assert.True(t, IsContainer("avatars"))
	assert.True(t, IsContainer("2024"))
	assert.False(t, IsContainer("photo.png"))
	assert.False(t, IsContainer(".emptyFolderPlaceholder"))
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "a.png", JoinPath("", "a.png"))
	assert.Equal(t, "dir/a.png", JoinPath("dir", "a.png"))
	assert.Equal(t, "dir/sub/a.png", JoinPath("/dir/sub/", "a.png"))
}

func TestLocalPathRoundTrip(t *testing.T) {
	root := t.TempDir()

	local, err := LocalPath(root, "users/42/avatar.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "users", "42", "avatar.png"), local)

	key, err := ObjectPath(root, local)
	require.NoError(t, err)
	assert.Equal(t, "users/42/avatar.png", key)
}

func TestLocalPathRejectsUnsafeKeys(t *testing.T) {
	root := t.TempDir()
	for _, key := range []string{"", "/etc/passwd", "../escape.txt", "a/../../b.txt", "a//b.txt", "./a.txt"} {
		_, err := LocalPath(root, key)
		assert.ErrorIs(t, err, ErrUnsafePath, "key %q", key)
	}
}

func TestObjectPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	_, err := ObjectPath(root, filepath.Dir(root))
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestPolicyAllowsPublicRead(t *testing.T) {
	doc, err := publicReadPolicy("media")
	require.NoError(t, err)
	assert.True(t, policyAllowsPublicRead(doc))

	assert.True(t, policyAllowsPublicRead(`{"Statement":[{"Effect":"Allow","Principal":"*","Action":"s3:GetObject"}]}`))
	assert.False(t, policyAllowsPublicRead(`{"Statement":[{"Effect":"Allow","Principal":{"AWS":["arn:aws:iam:::user/x"]},"Action":"s3:*"}]}`))
	assert.False(t, policyAllowsPublicRead(`{"Statement":[{"Effect":"Deny","Principal":"*","Action":"s3:GetObject"}]}`))
	assert.False(t, policyAllowsPublicRead(""))
	assert.False(t, policyAllowsPublicRead("not json"))
}
