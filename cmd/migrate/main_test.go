package main

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"

	appmigrations "github.com/wolfman30/wellness-crm/migrations"
)

type fakeMigrator struct {
	upErr  error
	steps  []int
	forced int
}

func (f *fakeMigrator) Up() error { return f.upErr }
func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}
func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) { return 4, false, nil }

func TestRunCommands(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	if err := run(m, nil); err != nil {
		t.Fatalf("up with no change should succeed: %v", err)
	}
	if err := run(m, []string{"down"}); err != nil || len(m.steps) != 1 || m.steps[0] != -1 {
		t.Fatalf("expected one step down, got %v %v", m.steps, err)
	}
	if err := run(m, []string{"force", "3"}); err != nil || m.forced != 3 {
		t.Fatalf("expected force 3, got %d %v", m.forced, err)
	}
	if err := run(m, []string{"force"}); err == nil {
		t.Fatalf("expected usage error")
	}
	if err := run(m, []string{"force", "x"}); err == nil {
		t.Fatalf("expected invalid version error")
	}
	if err := run(m, []string{"sideways"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if err := run(&fakeMigrator{upErr: errors.New("boom")}, nil); err == nil {
		t.Fatalf("expected up failure to surface")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(appmigrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", ups, downs)
	}
}
