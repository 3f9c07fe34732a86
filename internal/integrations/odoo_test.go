package integrations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/models"
)

const xmlrpcHeader = `<?xml version="1.0"?><methodResponse>`

func xmlrpcValue(v string) string {
	return xmlrpcHeader + `<params><param><value>` + v + `</value></param></params></methodResponse>`
}

func xmlrpcFault(msg string) string {
	return xmlrpcHeader + `<fault><value><struct>` +
		`<member><name>faultCode</name><value><int>1</int></value></member>` +
		`<member><name>faultString</name><value><string>` + msg + `</string></value></member>` +
		`</struct></value></fault></methodResponse>`
}

type odooServer struct {
	mu       sync.Mutex
	bodies   []string
	paths    []string
	respond  func(path, body string) string
	server   *httptest.Server
	settings models.OdooSettings
}

func newOdooServer(t *testing.T, respond func(path, body string) string) *odooServer {
	t.Helper()
	s := &odooServer{respond: respond}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(raw))
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(s.respond(r.URL.Path, string(raw))))
	}))
	t.Cleanup(s.server.Close)
	s.settings = models.OdooSettings{URL: s.server.URL, Database: "billit", Username: "admin@example.com"}
	return s
}

func TestOdooClient_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("returns uid", func(t *testing.T) {
		t.Parallel()

		srv := newOdooServer(t, func(path, body string) string {
			return xmlrpcValue(`<int>7</int>`)
		})
		uid, err := NewOdooClient(nil, 5*time.Second).Authenticate(context.Background(), srv.settings, "secret")
		require.NoError(t, err)
		require.Equal(t, int64(7), uid)
		require.Equal(t, "/xmlrpc/2/common", srv.paths[0])
		require.Contains(t, srv.bodies[0], "<methodName>authenticate</methodName>")
		require.Contains(t, srv.bodies[0], "billit")
	})

	t.Run("false means rejected login", func(t *testing.T) {
		t.Parallel()

		srv := newOdooServer(t, func(string, string) string {
			return xmlrpcValue(`<boolean>0</boolean>`)
		})
		_, err := NewOdooClient(nil, 5*time.Second).Authenticate(context.Background(), srv.settings, "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		settings := models.OdooSettings{URL: srv.URL, Database: "db", Username: "u"}
		_, err := NewOdooClient(nil, 50*time.Millisecond).Authenticate(context.Background(), settings, "pw")
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOdooClient_CallLeavesReplyOnTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(xmlrpcValue(`<int>7</int>`)))
	}))
	defer srv.Close()

	client, err := xmlrpc.NewClient(endpoint(srv.URL, "common"), nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	reply := int64(-1)
	err = NewOdooClient(nil, 50*time.Millisecond).call(context.Background(), client, "version", []any{}, &reply)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(-1), reply, "late response must not reach the caller")
}

func TestOdooClient_CallRejectsNonPointerReply(t *testing.T) {
	t.Parallel()

	client, err := xmlrpc.NewClient("http://127.0.0.1:1/xmlrpc/2/common", nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	var reply int64
	err = NewOdooClient(nil, time.Second).call(context.Background(), client, "version", []any{}, reply)
	require.Error(t, err)
}

func TestOdooClient_Send(t *testing.T) {
	t.Parallel()

	t.Run("creates partner and vendor bill", func(t *testing.T) {
		t.Parallel()

		srv := newOdooServer(t, func(path, body string) string {
			switch {
			case strings.Contains(body, "<string>res.partner</string>") && strings.Contains(body, "<string>search</string>"):
				return xmlrpcValue(`<array><data></data></array>`)
			case strings.Contains(body, "<string>res.partner</string>"):
				return xmlrpcValue(`<int>11</int>`)
			case strings.Contains(body, "<string>account.move</string>"):
				return xmlrpcValue(`<int>99</int>`)
			}
			return xmlrpcFault("unexpected call")
		})

		settings := srv.settings
		settings.UID = 7
		raw, _ := json.Marshal(settings)
		cred := &Credential{System: models.IntegrationOdoo, Secret: "pw", Settings: raw}

		resp, err := NewOdooClient(nil, 5*time.Second).Send(context.Background(), cred, sampleInvoice())
		require.NoError(t, err)
		require.JSONEq(t, `{"id":99,"partner_id":11}`, string(resp))

		require.Len(t, srv.bodies, 3)
		for _, p := range srv.paths {
			require.Equal(t, "/xmlrpc/2/object", p)
		}
		move := srv.bodies[2]
		require.Contains(t, move, "<name>invoice_line_ids</name>")
		require.Contains(t, move, "<name>partner_id</name>")
		require.Contains(t, move, "<string>in_invoice</string>")
		require.Contains(t, move, "<string>2026-03-01</string>")
		require.Contains(t, move, "<string>F-2026-001</string>")
	})

	t.Run("reuses existing partner", func(t *testing.T) {
		t.Parallel()

		srv := newOdooServer(t, func(path, body string) string {
			if strings.Contains(body, "<string>search</string>") {
				return xmlrpcValue(`<array><data><value><int>5</int></value></data></array>`)
			}
			return xmlrpcValue(`<int>100</int>`)
		})
		settings := srv.settings
		settings.UID = 7
		raw, _ := json.Marshal(settings)

		resp, err := NewOdooClient(nil, 5*time.Second).Send(context.Background(),
			&Credential{System: models.IntegrationOdoo, Secret: "pw", Settings: raw}, sampleInvoice())
		require.NoError(t, err)
		require.JSONEq(t, `{"id":100,"partner_id":5}`, string(resp))
		require.Len(t, srv.bodies, 2)
	})

	t.Run("fault becomes vendor error", func(t *testing.T) {
		t.Parallel()

		srv := newOdooServer(t, func(string, string) string { return xmlrpcFault("Access Denied") })
		settings := srv.settings
		settings.UID = 7
		raw, _ := json.Marshal(settings)

		_, err := NewOdooClient(nil, 5*time.Second).Send(context.Background(),
			&Credential{System: models.IntegrationOdoo, Secret: "pw", Settings: raw}, sampleInvoice())
		var vendorErr *VendorError
		require.ErrorAs(t, err, &vendorErr)
		require.Equal(t, models.IntegrationOdoo, vendorErr.Integration)
		require.Contains(t, err.Error(), "Access Denied")
	})

	t.Run("incomplete settings", func(t *testing.T) {
		t.Parallel()

		_, err := NewOdooClient(nil, time.Second).Send(context.Background(),
			&Credential{System: models.IntegrationOdoo, Secret: "pw", Settings: json.RawMessage(`{}`)}, sampleInvoice())
		require.ErrorIs(t, err, ErrNoCredentials)
	})
}
