//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rush-contest/apiserver/config"
	"github.com/rush-contest/apiserver/internal/server"
	"github.com/rush-contest/apiserver/internal/services"
	"github.com/rush-contest/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	serverPort       = 18080
	credentialSecret = "e2e-credential-secret"
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "postgres"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestRegistrationLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	stamp := time.Now().UnixNano()

	clubID, err := seedClub(fmt.Sprintf("E2E Chess Club %d", stamp))
	if err != nil {
		t.Fatalf("seed club: %v", err)
	}

	adminEmail := fmt.Sprintf("admin_%d@example.com", stamp)
	adminPassword := "adminpass123!"
	adminToken, err := bootstrapAdmin(t, baseURL, adminEmail, adminPassword)
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	// A moderator requests an account backed by the seeded club.
	moderatorEmail := fmt.Sprintf("jan_%d@example.com", stamp)
	pending, err := registerAccount(t, baseURL, map[string]any{
		"email":         moderatorEmail,
		"first_name":    "Jan",
		"last_name":     "Kowalski",
		"unit":          fmt.Sprintf("%d_club", clubID),
		"notifications": true,
	})
	if err != nil {
		t.Fatalf("register account: %v", err)
	}
	if pending.Active {
		t.Fatal("new request must be pending")
	}

	accepted, err := acceptAccount(t, baseURL, adminToken, pending.ID)
	if err != nil {
		t.Fatalf("accept account: %v", err)
	}
	if !strings.HasPrefix(accepted.Login, "jkowalski") {
		t.Fatalf("assigned login = %q, want a jkowalski variant", accepted.Login)
	}

	// A second accept must be refused.
	if _, err := acceptAccount(t, baseURL, adminToken, pending.ID); err == nil {
		t.Fatal("second accept succeeded, want 409")
	}

	// Set the first password through a credential link. The token is
	// recomputed here the same way the server derives it, bound to the
	// account's current (empty) password hash.
	tokens := services.NewCredentialTokenService(nil, credentialSecret)
	ref, token := tokens.IssueToken(types.Account{ID: accepted.ID})
	password := "modpass123!"
	if err := setPassword(t, baseURL, ref, token, password); err != nil {
		t.Fatalf("set password: %v", err)
	}

	// The redeemed token is spent: the password change re-bound validity.
	if err := setPassword(t, baseURL, ref, token, "otherpass"); err == nil {
		t.Fatal("reused credential token succeeded, want 400")
	}

	moderatorToken, err := login(t, baseURL, accepted.Login, password)
	if err != nil {
		t.Fatalf("login as moderator: %v", err)
	}

	contest, err := createContest(t, baseURL, adminToken, map[string]any{
		"name":         fmt.Sprintf("E2E Open %d", stamp),
		"place":        "Warsaw",
		"date":         time.Now().AddDate(0, 2, 0).Format(time.RFC3339),
		"deadline":     time.Now().AddDate(0, 1, 0).Format(time.RFC3339),
		"lowest_year":  2000,
		"highest_year": 2012,
	})
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}

	status, body, err := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/contests/%d/contestants", baseURL, contest.ID), moderatorToken,
		map[string]any{
			"first_name": "Ewa",
			"last_name":  "Lis",
			"gender":     "F",
			"birth_year": 2005,
		})
	if err != nil {
		t.Fatalf("add contestant: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("add contestant status %d: %s", status, body)
	}

	// Out-of-range birth year is refused with the eligible bounds.
	status, body, err = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/contests/%d/contestants", baseURL, contest.ID), moderatorToken,
		map[string]any{
			"first_name": "Ala",
			"last_name":  "Lis",
			"gender":     "F",
			"birth_year": 1990,
		})
	if err != nil {
		t.Fatalf("add ineligible contestant: %v", err)
	}
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("ineligible contestant status %d: %s", status, body)
	}
}

type accountResponse struct {
	ID     int    `json:"id"`
	Login  string `json:"login"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

type contestResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// bootstrapAdmin registers an account, then activates and promotes it
// directly in the database since the very first admin cannot be accepted
// through the API.
func bootstrapAdmin(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	account, err := registerAccount(t, baseURL, map[string]any{
		"email":      email,
		"first_name": "Ada",
		"last_name":  "Root",
		"individual": true,
	})
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	db, err := openDB()
	if err != nil {
		return "", err
	}
	defer db.Close()

	login := fmt.Sprintf("admin%d", account.ID)
	_, err = db.Exec(`UPDATE accounts
		SET login = $1, login_kind = 'assigned', active = TRUE, admin = TRUE,
		    password_hash = $2, updated_at = NOW()
		WHERE id = $3`, login, string(hash), account.ID)
	if err != nil {
		return "", err
	}

	return login(t, baseURL, login, password)
}

func seedClub(name string) (int, error) {
	db, err := openDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var id int
	err = db.QueryRow(
		"INSERT INTO clubs (name, code) VALUES ($1, $2) RETURNING id",
		name, int(time.Now().Unix()%100000)).Scan(&id)
	return id, err
}

func registerAccount(t *testing.T, baseURL string, payload map[string]any) (accountResponse, error) {
	t.Helper()

	status, body, err := doJSON(t, http.MethodPost, baseURL+"/accounts", "", payload)
	if err != nil {
		return accountResponse{}, err
	}
	if status != http.StatusCreated {
		return accountResponse{}, fmt.Errorf("register status %d: %s", status, body)
	}
	var parsed accountResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return accountResponse{}, err
	}
	return parsed, nil
}

func acceptAccount(t *testing.T, baseURL, token string, id int) (accountResponse, error) {
	t.Helper()

	status, body, err := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/accounts/%d/accept", baseURL, id), token, nil)
	if err != nil {
		return accountResponse{}, err
	}
	if status != http.StatusOK {
		return accountResponse{}, fmt.Errorf("accept status %d: %s", status, body)
	}
	var parsed accountResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return accountResponse{}, err
	}
	return parsed, nil
}

func setPassword(t *testing.T, baseURL, ref, token, password string) error {
	t.Helper()

	status, body, err := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/auth/password/%s/%s", baseURL, ref, token), "",
		map[string]any{"password": password})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("set password status %d: %s", status, body)
	}
	return nil
}

func login(t *testing.T, baseURL, user, password string) (string, error) {
	t.Helper()

	status, body, err := doJSON(t, http.MethodPost, baseURL+"/auth/login", "",
		map[string]any{"login": user, "password": password})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login status %d: %s", status, body)
	}
	var parsed loginResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", err
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("missing token in login response")
	}
	return parsed.Token, nil
}

func createContest(t *testing.T, baseURL, token string, payload map[string]any) (contestResponse, error) {
	t.Helper()

	status, body, err := doJSON(t, http.MethodPost, baseURL+"/contests", token, payload)
	if err != nil {
		return contestResponse{}, err
	}
	if status != http.StatusCreated {
		return contestResponse{}, fmt.Errorf("create contest status %d: %s", status, body)
	}
	var parsed contestResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return contestResponse{}, err
	}
	return parsed, nil
}

func doJSON(t *testing.T, method, url, token string, payload any) (int, string, error) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, "", err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(data)), nil
}

func openDB() (*sql.DB, error) {
	cfg := config.LoadConfig()
	return sql.Open("postgres", buildPostgresURL(cfg))
}

func waitForPostgres(ctx context.Context) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("JWT_SECRET", "e2e-jwt-secret")
	_ = os.Setenv("CREDENTIAL_SECRET", credentialSecret)
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "rush")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "rush_db")
	_ = os.Setenv("DB_USE_SSL", "false")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
