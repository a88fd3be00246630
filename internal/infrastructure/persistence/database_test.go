package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	db, err := Wrap(gormDB)
	require.NoError(t, err)
	return db, mock
}

func TestDatabase_PingContext(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		defer db.Close()

		mock.ExpectPing()
		assert.NoError(t, db.PingContext(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error is returned", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		defer db.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		assert.Error(t, db.PingContext(context.Background()))
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock := newMockDatabase(t)
	mock.ExpectClose()

	require.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_StatsCollector(t *testing.T) {
	db, _ := newMockDatabase(t)
	defer db.Close()

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(db.StatsCollector("sync")))

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
		for _, m := range mf.GetMetric() {
			require.NotEmpty(t, m.GetLabel())
			assert.Equal(t, "sync", m.GetLabel()[0].GetValue())
		}
	}
	assert.True(t, names["go_sql_max_open_connections"])
	assert.True(t, names["go_sql_in_use_connections"])
}
