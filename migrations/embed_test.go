package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	data, err := fs.ReadFile(FS, name)
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestAppointmentBindingSurvivesClinicDeletes(t *testing.T) {
	schema := readMigration(t, "000001_init.up.sql")

	assert.NotContains(t, strings.ToUpper(schema), "SET NULL")

	clinicRef := regexp.MustCompile(`(?m)^\s*clinic_id\s+uuid\s+REFERENCES clinics\(id\) ON DELETE (\w+)`)
	m := clinicRef.FindStringSubmatch(schema)
	require.NotNil(t, m, "appointments.clinic_id reference not found")
	assert.Equal(t, "RESTRICT", m[1])

	doctorRef := regexp.MustCompile(`(?m)^\s*doctor_id\s+uuid\s+NOT NULL REFERENCES doctors\(id\) ON DELETE (\w+),\s*\n\s*clinic_id`)
	m = doctorRef.FindStringSubmatch(schema)
	require.NotNil(t, m, "appointments.doctor_id reference not found")
	assert.Equal(t, "RESTRICT", m[1])
}

func TestLiveSlotIndexIgnoresCancelled(t *testing.T) {
	schema := readMigration(t, "000001_init.up.sql")

	assert.Regexp(t, `(?s)CREATE UNIQUE INDEX IF NOT EXISTS appointments_live_slot_idx.*WHERE status <> 'cancelled'`, schema)
}
