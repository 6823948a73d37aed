package main

import (
	"testing"

	"github.com/banshee-data/rover.control/internal/db"
)

func reopenSessions(t *testing.T, path string) ([]db.Session, error) {
	t.Helper()
	d, err := db.OpenDB(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.Sessions(10)
}
