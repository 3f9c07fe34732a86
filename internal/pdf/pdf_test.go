package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
)

var fakePDF = []byte("%PDF-1.7\n%fake\n")

func TestTemplateClient_Render(t *testing.T) {
	t.Parallel()

	t.Run("posts template data", func(t *testing.T) {
		t.Parallel()

		var got renderRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/render", r.URL.Path)
			assert.Equal(t, "tpl-key", r.Header.Get("X-API-Key"))
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &got))
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(fakePDF)
		}))
		defer server.Close()

		doc, err := NewTemplateClient(server.URL+"/", "tpl-key", "tpl-1", time.Second).
			Render(context.Background(), map[string]string{"proveedor": "Mercadona"})
		require.NoError(t, err)
		require.Equal(t, fakePDF, doc)
		require.Equal(t, "tpl-1", got.TemplateID)
	})

	t.Run("rejects non pdf body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"queued"}`))
		}))
		defer server.Close()

		_, err := NewTemplateClient(server.URL, "k", "t", time.Second).Render(context.Background(), nil)
		require.ErrorIs(t, err, errNotPDF)
	})

	t.Run("surfaces status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer server.Close()

		_, err := NewTemplateClient(server.URL, "k", "t", time.Second).Render(context.Background(), nil)
		require.ErrorContains(t, err, "status 402")
	})
}

type fakePutter struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	t.Parallel()

	putter := &fakePutter{}
	store := NewS3StoreWithClient(putter, "receipts")
	require.NoError(t, store.Put(context.Background(), "receipts/u/r.pdf", fakePDF, "application/pdf"))

	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	require.Equal(t, "receipts", aws.ToString(in.Bucket))
	require.Equal(t, "receipts/u/r.pdf", aws.ToString(in.Key))
	require.Equal(t, "application/pdf", aws.ToString(in.ContentType))
	require.Equal(t, int64(len(fakePDF)), aws.ToInt64(in.ContentLength))
	require.Equal(t, fakePDF, putter.bodies[0])

	putter.err = errors.New("access denied")
	require.ErrorContains(t, store.Put(context.Background(), "k", fakePDF, "application/pdf"), "access denied")
}

type memReceipts struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]*models.Receipt
}

func (m *memReceipts) Get(_ context.Context, id uuid.UUID) (*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReceipts) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range patch {
		m.receipts[id].Metadata[k] = v
	}
	return nil
}

type captureRenderer struct {
	data any
	err  error
}

func (c *captureRenderer) Render(_ context.Context, data any) ([]byte, error) {
	c.data = data
	if c.err != nil {
		return nil, c.err
	}
	return fakePDF, nil
}

type typesNotifier struct {
	types []string
}

func (n *typesNotifier) Emit(_ context.Context, _ uuid.UUID, typ, _, _ string, _ map[string]any) {
	n.types = append(n.types, typ)
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	newFixture := func() (*Generator, *models.Receipt, *memReceipts, *captureRenderer, *fakePutter, *typesNotifier) {
		issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		r := &models.Receipt{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			Supplier:  "Mercadona",
			Total:     decimal.RequireFromString("12.10"),
			IssueDate: &issued,
			Metadata:  map[string]any{},
		}
		receipts := &memReceipts{receipts: map[uuid.UUID]*models.Receipt{r.ID: r}}
		renderer := &captureRenderer{}
		putter := &fakePutter{}
		notifier := &typesNotifier{}
		g := NewGenerator(receipts, renderer, NewS3StoreWithClient(putter, "receipts"), notifier)
		g.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
		return g, r, receipts, renderer, putter, notifier
	}

	t.Run("renders uploads and records", func(t *testing.T) {
		t.Parallel()

		g, r, receipts, renderer, putter, notifier := newFixture()
		out, err := g.Generate(context.Background(), r.UserID, r.ID)
		require.NoError(t, err)
		require.Equal(t, ObjectKey(r.UserID, r.ID), out.Key)
		require.Equal(t, "receipts/"+r.UserID.String()+"/"+r.ID.String()+".pdf", out.Key)
		require.Equal(t, len(fakePDF), out.Size)

		data := renderer.data.(templateData)
		require.Equal(t, "EUR", data.Currency)
		require.Equal(t, "01/03/2026", data.IssueDate)
		require.Len(t, data.Items, 1, "synthetic item")
		require.True(t, data.Subtotal.Equal(r.Total))

		require.Len(t, putter.inputs, 1)
		stored := receipts.receipts[r.ID].Metadata[models.MetaGeneratedPDF].(map[string]any)
		require.Equal(t, out.Key, stored["key"])
		require.Equal(t, "2026-03-02T09:00:00Z", stored["generated_at"])
		require.Equal(t, []string{models.NotifyPDFGenerated}, notifier.types)
	})

	t.Run("ownership and existence", func(t *testing.T) {
		t.Parallel()

		g, r, _, _, putter, _ := newFixture()
		_, err := g.Generate(context.Background(), uuid.New(), r.ID)
		require.ErrorIs(t, err, ErrForbidden)
		_, err = g.Generate(context.Background(), r.UserID, uuid.New())
		require.ErrorIs(t, err, ErrReceiptNotFound)
		require.Empty(t, putter.inputs)
	})

	t.Run("render failure stops before upload", func(t *testing.T) {
		t.Parallel()

		g, r, receipts, renderer, putter, notifier := newFixture()
		renderer.err = errors.New("template missing")
		_, err := g.Generate(context.Background(), r.UserID, r.ID)
		require.ErrorContains(t, err, "template missing")
		require.Empty(t, putter.inputs)
		require.NotContains(t, receipts.receipts[r.ID].Metadata, models.MetaGeneratedPDF)
		require.Empty(t, notifier.types)
	})
}
