//go:build integration

package dynamics

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real environment configured in ../../.env:
//
//	go test -tags integration ./pkg/dynamics
func liveClient(t *testing.T) *D365 {
	t.Helper()
	_ = godotenv.Load("../../.env")

	conn := ConnectionContext{
		BaseURL:      os.Getenv("DYNAMICS_API_BASE_URL"),
		SystemURL:    os.Getenv("DYNAMICS_SYSTEM_URL"),
		TenantID:     os.Getenv("DYNAMICS_TENANT_ID"),
		ClientID:     os.Getenv("DYNAMICS_CLIENT_ID"),
		ClientSecret: os.Getenv("DYNAMICS_CLIENT_SECRET"),
	}
	if conn.BaseURL == "" || conn.TenantID == "" || conn.ClientID == "" || conn.ClientSecret == "" {
		t.Skip("Missing required environment variables")
	}
	return NewD365Client(conn)
}

func TestLive_PublicEntityExactName(t *testing.T) {
	d := liveClient(t)

	result, err := d.SearchPublicEntities(context.Background(), SearchOptions{Name: "CustomersV3", Mode: ModeEntityKeys})
	require.NoError(t, err)
	require.Len(t, result.Keys, 1)
	assert.Equal(t, "CustomersV3", result.Keys[0].Name)
	assert.Contains(t, result.Keys[0].Keys, "dataAreaId")
}

func TestLive_PublicEntityContainsWithODataQuery(t *testing.T) {
	d := liveClient(t)

	// A filter combined with a caller suffix is concatenated; the server decides how it is applied.
	result, err := d.SearchPublicEntities(context.Background(), SearchOptions{
		NameContains: "customer",
		ODataQuery:   "$top=5",
		Mode:         ModeEntityNamesOnly,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Names), 5)
}

func TestLive_PublicEnum(t *testing.T) {
	d := liveClient(t)

	result, err := d.SearchPublicEnums(context.Background(), SearchOptions{Name: "NoYes"})
	require.NoError(t, err)
	require.Len(t, result.Enums, 2)
	assert.Equal(t, 0, result.Enums[0].EnumIntValue)
	assert.Equal(t, 1, result.Enums[1].EnumIntValue)
}
