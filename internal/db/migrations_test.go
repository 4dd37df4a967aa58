package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunMigrationsValidatesArguments(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
		path string
		want string
	}{
		{name: "missing_path", dsn: "postgres://localhost/db", want: "migrations path cannot be empty"},
		{name: "missing_dsn", path: "./migrations/postgres", want: "database URL cannot be empty"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := RunMigrations(tc.dsn, tc.path)
			assert.EqualError(t, err, tc.want)
		})
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	pc := DefaultPoolConfig()
	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, 5*time.Second, pc.ConnectTimeout)
}
