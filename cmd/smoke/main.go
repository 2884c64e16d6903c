// Command smoke drives register, login in both modes, profile and logout
// against a running keystile-api.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/google/uuid"

	"keystile.org/internal/obs"
)

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path string, body any, headers map[string]string) (int, map[string]any, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

func main() {
	logger, err := obs.NewLogger(true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log := logger.Sugar()

	base := os.Getenv("KEYSTILE_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	jar, _ := cookiejar.New(nil)
	browser := &client{base: base, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
	api := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	must := func(step string, code int, body map[string]any, err error, want int) map[string]any {
		if err != nil {
			log.Fatalf("%s: %v", step, err)
		}
		if code != want {
			log.Fatalf("%s: expected %d, got %d: %v", step, want, code, body)
		}
		return body
	}

	code, body, err := browser.call(http.MethodGet, "/forgery-token", nil, nil)
	csrf, _ := must("forgery-token", code, body, err, http.StatusOK)["csrfToken"].(string)
	hdr := map[string]string{"X-CSRF-Token": csrf}

	suffix := uuid.NewString()[:8]
	user := "smoke-" + suffix
	password := "smoke-" + uuid.NewString()
	code, body, err = browser.call(http.MethodPost, "/register", map[string]string{
		"username": user,
		"email":    user + "@example.com",
		"password": password,
	}, hdr)
	reg := must("register", code, body, err, http.StatusCreated)

	// stateless
	code, body, err = api.call(http.MethodPost, "/login", map[string]any{"identifier": user, "password": password}, nil)
	token, _ := must("login token", code, body, err, http.StatusOK)["token"].(string)
	if token == "" {
		log.Fatalf("login token: empty token")
	}
	code, body, err = api.call(http.MethodGet, "/profile", nil, map[string]string{"Authorization": "Bearer " + token})
	if p := must("profile token", code, body, err, http.StatusOK); p["source"] != "token" || p["id"] != reg["userId"] {
		log.Fatalf("profile token: unexpected %v", p)
	}

	// persistent
	code, body, err = browser.call(http.MethodPost, "/login", map[string]any{"identifier": user, "password": password, "persistent": true}, hdr)
	must("login session", code, body, err, http.StatusOK)
	code, body, err = browser.call(http.MethodGet, "/profile", nil, nil)
	if p := must("profile session", code, body, err, http.StatusOK); p["source"] != "session" {
		log.Fatalf("profile session: unexpected %v", p)
	}

	code, body, err = browser.call(http.MethodPost, "/logout", nil, hdr)
	must("logout", code, body, err, http.StatusOK)
	code, body, err = browser.call(http.MethodGet, "/profile", nil, nil)
	must("profile after logout", code, body, err, http.StatusUnauthorized)

	log.Infof("keystile smoke test passed: user=%s role=%v", user, reg["role"])
}
