package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/config"
)

// TestMain verifies that starting and shutting down the dispatcher never
// leaks a goroutine (the http.Server's Serve loop, the admission
// semaphore's waiters), matching the teacher's own leak_test.go
// discipline for its long-running server type.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func startTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	cfg.Server.Addr = "127.0.0.1:0"
	srv := New(cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func TestServer_Reconstruir_IdentityRecovery(t *testing.T) {
	dir := t.TempDir()
	// H = identity(2), g = [3, 4] -> f converges to the gain-scaled
	// signal [3·γ(0), 4·γ(1)].
	writeCSV(t, dir, "H.csv", "1,0\n0,1\n")
	writeCSV(t, dir, "g.csv", "3\n4\n")

	cfg := config.Default()
	cfg.Store.CacheDir = dir
	cfg.Store.DataDir = dir
	srv := startTestServer(t, cfg)

	body, _ := json.Marshal(jobRequest{
		CaminhoH:        "H.csv",
		CaminhoG:        "g.csv",
		Largura:         2,
		Altura:          1,
		S:               2,
		N:               1,
		NomeArquivoBase: "teste",
	})

	resp, err := http.Post("http://"+srv.Addr()+"/reconstruir", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got jobReportWire
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "sucesso", got.Status)
	assert.GreaterOrEqual(t, got.Iteracoes, 1)
	assert.FileExists(t, filepath.Join(dir, "teste_FINAL.pgm"))
}

func TestServer_Reconstruir_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "H.csv", "1,0\n0,1\n")
	writeCSV(t, dir, "g.csv", "3\n4\n")

	cfg := config.Default()
	cfg.Store.CacheDir = dir
	cfg.Store.DataDir = dir
	srv := startTestServer(t, cfg)

	body, _ := json.Marshal(jobRequest{
		CaminhoH:        "H.csv",
		CaminhoG:        "g.csv",
		Largura:         3, // wrong: 3*1 != cols(H)=2
		Altura:          1,
		S:               2,
		N:               1,
		NomeArquivoBase: "teste",
	})

	resp, err := http.Post("http://"+srv.Addr()+"/reconstruir", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Reconstruir_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.CacheDir = dir
	cfg.Store.DataDir = dir
	srv := startTestServer(t, cfg)

	body, _ := json.Marshal(jobRequest{
		CaminhoH:        "nope.csv",
		CaminhoG:        "nope2.csv",
		Largura:         1,
		Altura:          1,
		S:               1,
		N:               1,
		NomeArquivoBase: "teste",
	})

	resp, err := http.Post("http://"+srv.Addr()+"/reconstruir", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Reconstruir_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "H.csv", "1,0\n0,1\n")
	writeCSV(t, dir, "g.csv", "3\n4\n")

	cfg := config.Default()
	cfg.Store.CacheDir = dir
	cfg.Store.DataDir = dir
	srv := startTestServer(t, cfg)

	cases := []struct {
		name string
		req  jobRequest
	}{
		{
			name: "absolute caminho_h",
			req: jobRequest{
				CaminhoH: "/etc/passwd", CaminhoG: "g.csv",
				Largura: 2, Altura: 1, S: 2, N: 1, NomeArquivoBase: "teste",
			},
		},
		{
			name: "traversal in caminho_g",
			req: jobRequest{
				CaminhoH: "H.csv", CaminhoG: "../../../../etc/passwd",
				Largura: 2, Altura: 1, S: 2, N: 1, NomeArquivoBase: "teste",
			},
		},
		{
			name: "traversal in nome_arquivo_base",
			req: jobRequest{
				CaminhoH: "H.csv", CaminhoG: "g.csv",
				Largura: 2, Altura: 1, S: 2, N: 1, NomeArquivoBase: "../../../../tmp/escaped",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.req)
			resp, err := http.Post("http://"+srv.Addr()+"/reconstruir", "application/json", bytes.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_Saude(t *testing.T) {
	cfg := config.Default()
	cfg.Store.CacheDir = t.TempDir()
	srv := startTestServer(t, cfg)

	resp, err := http.Get("http://" + srv.Addr() + "/saude")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got saudeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
}

func TestServer_AdmissionControl_EveryRequestSucceedsOrIsRejected(t *testing.T) {
	dir := t.TempDir()
	// A large-ish matrix so a job takes long enough to keep the pool busy
	// while concurrent requests race in.
	rows, cols := 40, 3
	var hBuf, gBuf bytes.Buffer
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				hBuf.WriteByte(',')
			}
			fmt.Fprintf(&hBuf, "%d", (i+j)%5+1)
		}
		hBuf.WriteByte('\n')
		fmt.Fprintf(&gBuf, "%d\n", i%7+1)
	}
	writeCSV(t, dir, "H.csv", hBuf.String())
	writeCSV(t, dir, "g.csv", gBuf.String())

	cfg := config.Default()
	cfg.Store.CacheDir = dir
	cfg.Store.DataDir = dir
	cfg.Server.MaxConcurrentJobs = 2
	cfg.Server.AdmissionWaitMS = 1 // near-zero wait budget forces fast 503s
	srv := startTestServer(t, cfg)

	const n = 8
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(jobRequest{
				CaminhoH:        "H.csv",
				CaminhoG:        "g.csv",
				Largura:         3,
				Altura:          1,
				S:               rows,
				N:               1,
				NomeArquivoBase: fmt.Sprintf("job%d", i),
			})
			resp, err := http.Post("http://"+srv.Addr()+"/reconstruir", "application/json", bytes.NewReader(body))
			if err != nil {
				statuses[i] = -1
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	okCount, rejectCount := 0, 0
	for _, code := range statuses {
		switch code {
		case http.StatusOK:
			okCount++
		case http.StatusServiceUnavailable:
			rejectCount++
		}
	}
	// Every request resolves to either success or 503; none hang or
	// error transport-side, per spec.md §8's concurrency invariant.
	assert.Equal(t, n, okCount+rejectCount)
}

type jobReportWire struct {
	Status    string  `json:"status"`
	Iteracoes int     `json:"iteracoes"`
	ErroFinal float64 `json:"erro_final"`
}
