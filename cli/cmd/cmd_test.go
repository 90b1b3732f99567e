package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	lcfg "dopahiyaa/cli/internal/config"
)

func run(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func(k string) string { return env[k] })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestBuildQuoteRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		flags       quoteFlags
		quantitySet bool
		check       func(t *testing.T, f quoteFlags, set bool)
	}{
		{
			name:        "filters and quantity",
			flags:       quoteFlags{city: "Pune", brand: "Honda", quantity: 20},
			quantitySet: true,
			check: func(t *testing.T, f quoteFlags, set bool) {
				req := buildQuoteRequest(f, set)
				if req.City != "Pune" || req.Brand != "Honda" || req.Quantity == nil || *req.Quantity != 20 || req.UseFilters != nil {
					t.Fatalf("unexpected request %+v", req)
				}
			},
		},
		{
			name:  "quantity omitted when not set",
			flags: quoteFlags{quantity: 0},
			check: func(t *testing.T, f quoteFlags, set bool) {
				if req := buildQuoteRequest(f, set); req.Quantity != nil {
					t.Fatalf("expected nil quantity, got %v", *req.Quantity)
				}
			},
		},
		{
			name:  "no-filters drops filter values",
			flags: quoteFlags{city: "Pune", noFilters: true},
			check: func(t *testing.T, f quoteFlags, set bool) {
				req := buildQuoteRequest(f, set)
				if req.UseFilters == nil || *req.UseFilters || req.City != "" {
					t.Fatalf("unexpected request %+v", req)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, tt.flags, tt.quantitySet)
		})
	}
}

func TestQuoteCommandPrintsTotal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"basePrice":"10","perLeadPrice":"12","quantity":10,"subtotal":"120","bulkDiscount":"0","totalPrice":120,"minQuantity":10,"hasFilters":true,"adjustments":[{"ruleName":"Pune premium","amount":"2"}]}`))
	}))
	defer srv.Close()

	out, err := run(t, nil, "--endpoint", srv.URL, "--token", "tok", "quote", "--city", "Pune", "--quantity", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"120 credits", "Pune premium", "+2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestUnlockCommandJSONOutput(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/leads/lead-9/unlock" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true,"leadId":"lead-9","creditsRemaining":7,"cost":3}`))
	}))
	defer srv.Close()

	env := map[string]string{"LEADCTL_ENDPOINT": srv.URL, "LEADCTL_TOKEN": "tok"}
	out, err := run(t, env, "--output", "json", "unlock", "lead-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("expected json, got %q", out)
	}
	if got["creditsRemaining"] != float64(7) {
		t.Fatalf("unexpected output %v", got)
	}
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "missing token", args: []string{"unlock", "lead-1"}, want: "no token configured"},
		{name: "bad output", args: []string{"--output", "xml", "version"}, want: "unknown output format"},
		{name: "resolve needs note", env: map[string]string{"LEADCTL_TOKEN": "tok"}, args: []string{"reconcile", "resolve", "r-1"}, want: "note"},
		{name: "token needs secret", args: []string{"token", "--user", "u"}, want: "--secret is required"},
		{name: "token bad role", args: []string{"token", "--user", "u", "--secret", "s", "--role", "seller"}, want: "unknown role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := run(t, tt.env, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestTokenCommandSavesToConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd(func(string) string { return "" })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "token", "--user", "dealer-1", "--role", "dealer", "--secret", "dev", "--save"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tok := strings.TrimSpace(out.String())
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return []byte("dev"), nil }); err != nil {
		t.Fatalf("token does not verify: %v", err)
	}

	cfg, err := lcfg.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != tok {
		t.Fatalf("expected saved token to match printed token")
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, nil, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "leadctl") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLoginReadsTokenFromPipe(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd(func(string) string { return "" })
	root.SetIn(strings.NewReader("aaa.bbb.ccc\n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "login", "--set-endpoint", "http://leads.internal:18040/"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := lcfg.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Token != "aaa.bbb.ccc" || cfg.Endpoint != "http://leads.internal:18040" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	root := newRootCmd(func(string) string { return "" })
	root.SetIn(strings.NewReader("\n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"), "login"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "no token") {
		t.Fatalf("expected no token error, got %v", err)
	}
}
