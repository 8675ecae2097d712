package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportBuildWorkbook(t *testing.T) {
	result := routerFixture(t)
	service := NewExportService(NewOwnershipService())

	f, err := service.BuildWorkbook(result)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Contributors", "Ownership", "Activity"}, f.GetSheetList())

	header, err := f.GetCellValue("Contributors", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Name", header)

	name, err := f.GetCellValue("Contributors", "A2")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	path, err := f.GetCellValue("Ownership", "A2")
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}
