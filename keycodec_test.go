package redistruct

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildKeyDeterministic(t *testing.T) {
	a, err := BuildKey(":", "customer", "a@example.com", "object")
	require.NoError(t, err)
	b, err := BuildKey(":", "customer", "a@example.com", "object")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "customer:a@example.com:object", a)
}

func TestBuildKeyInputSensitivity(t *testing.T) {
	base, _ := BuildKey(":", "customer", "id1", "object")
	other, _ := BuildKey(":", "customer", "id2", "object")
	require.NotEqual(t, base, other)
	other, _ = BuildKey(":", "session", "id1", "object")
	require.NotEqual(t, base, other)
	other, _ = BuildKey(":", "customer", "id1", "meta")
	require.NotEqual(t, base, other)
}

func TestBuildKeyRejectsEmptyIdentifier(t *testing.T) {
	_, err := BuildKey(":", "customer", "", "object")
	require.Error(t, err)
	require.True(t, IsCode(err, MissingIdentifier))
}

func TestBuildKeySuffixOmission(t *testing.T) {
	k, err := BuildKey(":", "customer", "id1", NoSuffix)
	require.NoError(t, err)
	require.Equal(t, "customer:id1", k)

	k, err = BuildKey(":", "customer", "id1", "")
	require.NoError(t, err)
	require.Equal(t, "customer:id1", k)
}

func TestBuildKeyCustomDelimiter(t *testing.T) {
	k, err := BuildKey("/", "customer", "id1", "object")
	require.NoError(t, err)
	require.Equal(t, "customer/id1/object", k)
}

func TestBuildClassKey(t *testing.T) {
	require.Equal(t, "customer:instances", BuildClassKey(":", "customer", "instances"))
}
