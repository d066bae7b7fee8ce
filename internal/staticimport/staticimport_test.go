package staticimport

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseTransfers(t *testing.T) {
	zipBytes := buildZip(t, map[string][]string{
		"transfers.txt": {
			"from_stop_id,to_stop_id,transfer_type,min_transfer_time",
			"101,103,2,180",
			"104,104,2,", // self-transfer, left for the caller to drop via model.StopTransfer.Valid
		},
	})

	rows, err := ParseTransfers(zipBytes)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "101", rows[0].FromStopID)
	assert.Equal(t, "103", rows[0].ToStopID)
	assert.Equal(t, int16(2), rows[0].TransferType)
	require.NotNil(t, rows[0].MinTransferSeconds())
	assert.Equal(t, int16(180), *rows[0].MinTransferSeconds())

	assert.Nil(t, rows[1].MinTransferSeconds())
}

func TestParseTransfersMissingFileReturnsNil(t *testing.T) {
	zipBytes := buildZip(t, map[string][]string{
		"stops.txt": {"stop_id,stop_name,stop_lat,stop_lon", "s,S,12,34"},
	})

	rows, err := ParseTransfers(zipBytes)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
