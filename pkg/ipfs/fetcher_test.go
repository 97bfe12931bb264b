package ipfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

// fakeNode serves the cat endpoint of the IPFS HTTP API.
func fakeNode(t *testing.T, content map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/cat") {
			http.NotFound(w, r)
			return
		}
		cid := r.URL.Query().Get("arg")
		body, ok := content[cid]
		if !ok {
			http.Error(w, "merkledag: not found", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchResolvesURI(t *testing.T) {
	srv := fakeNode(t, map[string]string{"QmCode": "export default () => 1"})
	defer srv.Close()

	f, err := NewFetcher(logging.NewNoopLogger(), srv.URL)
	require.NoError(t, err)

	code, err := f.Fetch(context.Background(), "ipfs://QmCode")
	require.NoError(t, err)
	assert.Equal(t, "export default () => 1", code)

	// Bare CIDs are accepted too.
	code, err = f.Fetch(context.Background(), "QmCode")
	require.NoError(t, err)
	assert.Equal(t, "export default () => 1", code)
}

func TestFetchMissingCID(t *testing.T) {
	srv := fakeNode(t, nil)
	defer srv.Close()

	f, err := NewFetcher(logging.NewNoopLogger(), srv.URL)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "ipfs://QmMissing")
	require.Error(t, err)
}

func TestFetchRejectsOversizedContent(t *testing.T) {
	srv := fakeNode(t, map[string]string{"QmBig": strings.Repeat("a", maxCodeBytes+1)})
	defer srv.Close()

	f, err := NewFetcher(logging.NewNoopLogger(), srv.URL)
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), "ipfs://QmBig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestNewFetcherRequiresURL(t *testing.T) {
	_, err := NewFetcher(logging.NewNoopLogger(), "")
	require.Error(t, err)
}
