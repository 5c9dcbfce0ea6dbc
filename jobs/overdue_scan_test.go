package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverdueMessageFormatting(t *testing.T) {
	got := overdueMessage(750000, 5)
	require.Equal(t, "Saldo kas Anda sebesar Rp750.000 belum disetor selama 5 hari. Segera lakukan serah terima.", got)
}
