package seedr_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/seedr_tray/internal/seedr"
	"github.com/italolelis/seedr_tray/internal/storage"
	"github.com/italolelis/seedr_tray/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type memoryStore map[string]string

func (m memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", storage.ErrNotFound
	}

	return v, nil
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, error) { return "", f.err }

// fakeSeedr emulates the subset of the Seedr API used by the client.
type fakeSeedr struct {
	mu sync.Mutex

	accessToken  string
	expiresIn    int64
	folders      []seedr.Folder
	folderStatus int
	resultStatus int
	resultBody   string

	authorizeCalls  int
	authorizeQuery  url.Values
	folderQuery     url.Values
	resourceFormSet []url.Values
}

func newFakeSeedr(t *testing.T) (*fakeSeedr, *httptest.Server) {
	t.Helper()

	f := &fakeSeedr{
		accessToken:  "access-1",
		folderStatus: http.StatusOK,
		resultStatus: http.StatusOK,
		resultBody:   `{"result":true}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/device/code", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "seedr_xbmc", r.URL.Query().Get("client_id"))
		fmt.Fprint(w, `{"device_code":"dev-123","user_code":"ABCD-EFGH"}`)
	})
	mux.HandleFunc("/api/device/authorize", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.authorizeCalls++
		f.authorizeQuery = r.URL.Query()

		if f.accessToken == "" {
			fmt.Fprint(w, `{"error":"authorization_pending"}`)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": f.accessToken, "expires_in": f.expiresIn})
	})
	mux.HandleFunc("/api/folder", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.folderQuery = r.URL.Query()

		w.WriteHeader(f.folderStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{"folders": f.folders})
	})
	mux.HandleFunc("/oauth_test/resource.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		f.mu.Lock()
		f.resourceFormSet = append(f.resourceFormSet, url.Values(r.MultipartForm.Value))
		status, body := f.resultStatus, f.resultBody
		f.mu.Unlock()

		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return f, ts
}

func (f *fakeSeedr) lastForm(t *testing.T) url.Values {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	require.NotEmpty(t, f.resourceFormSet)

	return f.resourceFormSet[len(f.resourceFormSet)-1]
}

func newClient(ts *httptest.Server, store storage.SettingsReader) *seedr.Client {
	tokens := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, store, time.Hour)

	return seedr.NewClient(ts.URL, seedr.DefaultClientID, tokens, seedr.WithHTTPClient(ts.Client()))
}

func TestDeviceTokenSource_SendsStoredDeviceCode(t *testing.T) {
	f, ts := newFakeSeedr(t)
	store := memoryStore{storage.DeviceTokenKey: "dev-123"}

	src := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, store, time.Hour)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "dev-123", f.authorizeQuery.Get("device_code"))
	assert.Equal(t, "seedr_xbmc", f.authorizeQuery.Get("client_id"))
}

func TestDeviceTokenSource_MissingDeviceCodeIsSentEmpty(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.accessToken = ""

	src := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, time.Hour)

	_, err := src.Token()

	var authErr *seedr.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authorize", authErr.Operation)
	assert.Contains(t, f.authorizeQuery, "device_code")
	assert.Empty(t, f.authorizeQuery.Get("device_code"))
}

func TestDeviceTokenSource_StoreFailure(t *testing.T) {
	_, ts := newFakeSeedr(t)
	boom := errors.New("disk on fire")

	src := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, failingStore{err: boom}, time.Hour)

	_, err := src.Token()
	assert.ErrorIs(t, err, boom)
}

func TestDeviceTokenSource_Expiry(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int64
		ttl       time.Duration
		want      time.Duration
	}{
		{"reported by api", 600, time.Hour, 10 * time.Minute},
		{"fallback ttl", 0, time.Hour, time.Hour},
		{"no expiry", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ts := newFakeSeedr(t)
			f.expiresIn = tt.expiresIn

			src := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, tt.ttl)

			tok, err := src.Token()
			require.NoError(t, err)

			if tt.want == 0 {
				assert.True(t, tok.Expiry.IsZero())

				return
			}

			assert.WithinDuration(t, time.Now().Add(tt.want), tok.Expiry, 5*time.Second)
		})
	}
}

func TestDeviceTokenSource_ReuseCachesUntilExpiry(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.expiresIn = 3600

	src := oauth2.ReuseTokenSource(nil,
		seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, 0))

	client := seedr.NewClient(ts.URL, seedr.DefaultClientID, src, seedr.WithHTTPClient(ts.Client()))

	_, err := client.ListFolders(context.Background())
	require.NoError(t, err)
	_, err = client.ListFolders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.authorizeCalls)
}

func TestClient_EveryCallExchangesToken(t *testing.T) {
	f, ts := newFakeSeedr(t)
	client := newClient(ts, memoryStore{storage.DeviceTokenKey: "dev-123"})
	ctx := context.Background()

	_, err := client.ListFolders(ctx)
	require.NoError(t, err)
	require.NoError(t, client.AddMagnet(ctx, "magnet:?xt=urn:btih:abc"))
	_, err = client.CreateArchive(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, f.authorizeCalls)
}

func TestRequestDeviceCode(t *testing.T) {
	_, ts := newFakeSeedr(t)
	client := newClient(ts, memoryStore{})

	code, err := client.RequestDeviceCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-123", code.DeviceCode)
	assert.Equal(t, "ABCD-EFGH", code.UserCode)
}

func TestListFolders(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.folders = []seedr.Folder{
		{ID: 1, Name: "Ubuntu ISO", Size: 3 << 30, LastUpdate: "2024-03-01 10:00:00"},
		{ID: 2, Name: "Debian", PlayVideo: true},
	}

	client := newClient(ts, memoryStore{})

	folders, err := client.ListFolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.folders, folders)
	assert.Equal(t, "access-1", f.folderQuery.Get("access_token"))
}

func TestListFolders_NonSuccessStatusReturnsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f, ts := newFakeSeedr(t)
			f.folderStatus = status
			f.folders = []seedr.Folder{{ID: 1, Name: "ignored"}}

			folders, err := newClient(ts, memoryStore{}).ListFolders(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, folders)
			assert.Empty(t, folders)
		})
	}
}

func TestListFolders_NullFolders(t *testing.T) {
	_, ts := newFakeSeedr(t)

	folders, err := newClient(ts, memoryStore{}).ListFolders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, folders)
	assert.Empty(t, folders)
}

func TestListFolders_TransportError(t *testing.T) {
	_, ts := newFakeSeedr(t)

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "static"})
	client := seedr.NewClient(ts.URL, seedr.DefaultClientID, tokens, seedr.WithHTTPClient(ts.Client()))

	ts.Close()

	_, err := client.ListFolders(context.Background())

	var netErr *seedr.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "list_folders", netErr.Operation)
	assert.Zero(t, netErr.StatusCode)
}

func TestCreateArchive(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultBody = `{"result":true,"archive_id":99,"archive_url":"https://rd.seedr.cc/zip/99"}`

	archive, err := newClient(ts, memoryStore{}).CreateArchive(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, &seedr.Archive{Success: true, ID: 99, URL: "https://rd.seedr.cc/zip/99"}, archive)

	form := f.lastForm(t)
	assert.Equal(t, "access-1", form.Get("access_token"))
	assert.Equal(t, "create_empty_archive", form.Get("func"))
	assert.JSONEq(t, `[{"type":"folder","id":1}]`, form.Get("archive_arr"))
}

func TestCreateArchive_IsNotDeduplicated(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultBody = `{"result":true,"archive_id":1,"archive_url":"u"}`
	client := newClient(ts, memoryStore{})

	_, err := client.CreateArchive(context.Background(), 5)
	require.NoError(t, err)
	_, err = client.CreateArchive(context.Background(), 5)
	require.NoError(t, err)

	assert.Len(t, f.resourceFormSet, 2)
}

func TestCreateArchive_ErrorStatus(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultStatus = http.StatusBadGateway
	f.resultBody = "upstream down"

	_, err := newClient(ts, memoryStore{}).CreateArchive(context.Background(), 1)

	var netErr *seedr.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
	assert.Equal(t, "upstream down", netErr.APIMessage)
}

func TestCreateArchive_MalformedBody(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultBody = "<html>"

	_, err := newClient(ts, memoryStore{}).CreateArchive(context.Background(), 1)

	var invalidErr *seedr.InvalidResponseError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "create_archive", invalidErr.Operation)
}

func TestFetchFile(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultBody = `{"result":true,"url":"https://rd.seedr.cc/f/7","name":"movie.mkv"}`

	file, err := newClient(ts, memoryStore{}).FetchFile(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", file.Name)
	assert.Equal(t, "https://rd.seedr.cc/f/7", file.URL)
	assert.True(t, file.Success)

	form := f.lastForm(t)
	assert.Equal(t, "fetch_file", form.Get("func"))
	assert.Equal(t, "7", form.Get("folder_file_id"))
}

func TestDeleteFolder(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"accepted", http.StatusOK, true},
		{"rejected", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ts := newFakeSeedr(t)
			f.resultStatus = tt.status

			deleted, err := newClient(ts, memoryStore{}).DeleteFolder(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, tt.want, deleted)

			form := f.lastForm(t)
			assert.Equal(t, "delete", form.Get("func"))
			assert.JSONEq(t, `[{"type":"folder","id":42}]`, form.Get("delete_arr"))
		})
	}
}

func TestAddMagnet_DoesNotInspectResponse(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.resultStatus = http.StatusInternalServerError
	f.resultBody = `{"result":false,"error":"quota"}`

	magnet := "magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056&dn=ubuntu"

	require.NoError(t, newClient(ts, memoryStore{}).AddMagnet(context.Background(), magnet))

	form := f.lastForm(t)
	assert.Equal(t, "add_torrent", form.Get("func"))
	assert.Equal(t, magnet, form.Get("torrent_magnet"))
}

func TestAddMagnet_UnauthorizedDevice(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.accessToken = ""

	err := newClient(ts, memoryStore{}).AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")

	var authErr *seedr.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, f.resourceFormSet)
}

func TestClient_NoTokenSource(t *testing.T) {
	client := seedr.NewClient("http://127.0.0.1:0", seedr.DefaultClientID, nil)

	_, err := client.ListFolders(context.Background())

	var authErr *seedr.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestInstrumentedClient_PassesThrough(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.folders = []seedr.Folder{{ID: 3, Name: "Arch"}}

	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	client := seedr.NewInstrumentedClient(newClient(ts, memoryStore{}), tel)

	folders, err := client.ListFolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.folders, folders)

	deleted, err := client.DeleteFolder(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestFolder_UpdatedAt(t *testing.T) {
	at, ok := seedr.Folder{LastUpdate: "2024-03-01 10:00:00"}.UpdatedAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), at)

	_, ok = seedr.Folder{}.UpdatedAt()
	assert.False(t, ok)
}

func TestClient_TokenExchangeFollowsCallContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/device/authorize", func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	device := seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, 0)

	sources := map[string]oauth2.TokenSource{
		"device":  device,
		"caching": seedr.NewCachingTokenSource(device),
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			client := seedr.NewClient(ts.URL, seedr.DefaultClientID, src, seedr.WithHTTPClient(ts.Client()))

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			errs := make(chan error, 1)

			go func() {
				_, err := client.ListFolders(ctx)
				errs <- err
			}()

			select {
			case err := <-errs:
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			case <-time.After(2 * time.Second):
				t.Fatal("ListFolders kept waiting on authorize after its context ended")
			}
		})
	}
}

func TestCachingTokenSource_ReuseAndReset(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.expiresIn = 3600

	cache := seedr.NewCachingTokenSource(
		seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, 0))
	client := seedr.NewClient(ts.URL, seedr.DefaultClientID, cache, seedr.WithHTTPClient(ts.Client()))
	ctx := context.Background()

	_, err := client.ListFolders(ctx)
	require.NoError(t, err)
	_, err = client.ListFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.authorizeCalls)

	f.mu.Lock()
	f.accessToken = "access-2"
	f.mu.Unlock()

	cache.Reset()

	_, err = client.ListFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.authorizeCalls)
	assert.Equal(t, "access-2", f.folderQuery.Get("access_token"))
}

func TestCachingTokenSource_ErrorIsNotCached(t *testing.T) {
	f, ts := newFakeSeedr(t)
	f.accessToken = ""

	cache := seedr.NewCachingTokenSource(
		seedr.NewDeviceTokenSource(context.Background(), ts.Client(), ts.URL, seedr.DefaultClientID, memoryStore{}, time.Hour))

	_, err := cache.TokenContext(context.Background())
	require.Error(t, err)

	f.mu.Lock()
	f.accessToken = "access-3"
	f.mu.Unlock()

	tok, err := cache.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-3", tok.AccessToken)
	assert.Equal(t, 2, f.authorizeCalls)
}
