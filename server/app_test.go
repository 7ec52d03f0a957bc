package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"brewlink/config"
	"brewlink/internal/client"
	"brewlink/internal/commands"
)

const fixturesYAML = `
machines:
  - name: lobby
    water_tank_enabled: false
    consumables:
      - {type: beans, capacity: 1000, current: 500}
      - {type: water, capacity: 2000, current: 2000}
devices:
  - {key: dev-1, secret: s1, machine: lobby}
recipes:
  - {beverage: coffee, consumable: beans, delta: -18}
  - {beverage: coffee, consumable: water, delta: -150, require_water_tank: true}
`

func newApp(t *testing.T, driver, dsn string) (*App, *httptest.Server) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(fixturesYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Driver = driver
	cfg.Database.DSN = dsn
	cfg.Database.Fixtures = path

	a := &App{}
	if err := a.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)
	return a, srv
}

func TestRun_NotInitialized(t *testing.T) {
	if err := (&App{}).Run(context.Background()); err != ErrNotInitialized {
		t.Fatalf("err = %v", err)
	}
}

func TestDeviceRoundTrip(t *testing.T) {
	for _, tc := range []struct{ name, driver, dsn string }{
		{"memory", "", ""},
		{"sqlite", "sqlite", ":memory:"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, srv := newApp(t, tc.driver, tc.dsn)
			ctx := context.Background()
			dev := client.New(srv.URL, "dev-1", "s1")

			if cmd, err := dev.Poll(ctx); err != nil || cmd != nil {
				t.Fatalf("empty poll = %+v, %v", cmd, err)
			}

			bucket, err := dev.SendTelemetry(ctx, client.Report{Counts: client.Counts{Coffee: 2}, FWVersion: "1.0"})
			if err != nil || bucket == "" {
				t.Fatalf("telemetry = %q, %v", bucket, err)
			}

			res, err := dev.SendProducts(ctx, client.Counts{Coffee: 2})
			if err != nil {
				t.Fatal(err)
			}
			if res.Applied != 2 || len(res.Warnings) != 1 || res.Warnings[0] != "skip coffee:water water_tank_disabled" {
				t.Fatalf("products = %+v", res)
			}

			if tc.driver == "" {
				rec, ok, err := a.Memory().LookupDevice(ctx, "dev-1")
				if err != nil || !ok {
					t.Fatal("dev-1 not seeded")
				}
				q := commands.NewQueue(a.Memory(), 1, nil)
				if _, err := q.Enqueue(ctx, rec.ID, "reboot", nil); err != nil {
					t.Fatal(err)
				}
				cmd, err := dev.Poll(ctx)
				if err != nil || cmd == nil || cmd.Command != "reboot" {
					t.Fatalf("poll = %+v, %v", cmd, err)
				}
				if err := dev.Ack(ctx, cmd.ID, "done", ""); err != nil {
					t.Fatal(err)
				}
				if got := a.Memory().Commands(rec.ID)[0].Status; got != "done" {
					t.Fatalf("status = %q", got)
				}
			}
		})
	}
}

func TestWrongSecretIsUnauthorized(t *testing.T) {
	_, srv := newApp(t, "", "")
	_, err := client.New(srv.URL, "dev-1", "wrong").Poll(context.Background())
	se, ok := err.(*client.StatusError)
	if !ok || se.Status != http.StatusUnauthorized || se.Code != "unauthorized" {
		t.Fatalf("err = %v", err)
	}
}

func TestHealth(t *testing.T) {
	for _, driver := range []string{"", "sqlite"} {
		dsn := ""
		if driver != "" {
			dsn = ":memory:"
		}
		_, srv := newApp(t, driver, dsn)
		for _, path := range []string{"/healthz", "/readyz"} {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("%s (driver %q) = %d", path, driver, resp.StatusCode)
			}
		}
	}
}
