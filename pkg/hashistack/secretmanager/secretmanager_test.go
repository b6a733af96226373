package secretmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretsGet(t *testing.T) {
	s := Secrets{"postgres_password": "pw", "port": 5432}
	require.Equal(t, "pw", s.Get("postgres_password"))
	require.Empty(t, s.Get("port"))
	require.Empty(t, s.Get("missing"))
}
