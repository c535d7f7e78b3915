package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/iotd-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "astro", Password: "secret", Name: "astrobin", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=astro password=secret dbname=astrobin sslmode=require application_name=iotd-api", dsn)
}
