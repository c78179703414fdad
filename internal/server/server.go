// Package server implements C6, the job dispatcher: it accepts
// POST /reconstruir over HTTP, admits jobs under a bounded-concurrency
// semaphore with an advisory free-memory probe, runs the C1→C5
// pipeline in order, and replies with the C7 metadata envelope.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/config"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/matrixstore"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/obslog"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/reconerrors"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/regularize"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/render"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/report"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/signalproc"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/solver"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/version"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/pkg/pathutil"
)

// Server is the reconstruction service's HTTP front end: one process-wide
// matrix cache (internal/matrixstore.Store) shared read-only by every
// job, gated by a counting semaphore of capacity cfg.Server.MaxConcurrentJobs.
type Server struct {
	cfg   *config.Config
	store *matrixstore.Store
	sem   *semaphore.Weighted

	listener   net.Listener
	httpServer *http.Server
	startTime  time.Time
	wg         sync.WaitGroup

	mu      sync.RWMutex
	running bool

	shutdownChan chan struct{}

	jobsAdmitted  int64
	jobsRejected  int64
	jobsCompleted int64
	jobsFailed    int64
	jobsInFlight  int64
}

// New constructs a Server wired to cfg. The matrix cache is created
// empty and populated lazily on first reference to a given path, per
// spec.md §9's "init on first request" choice.
func New(cfg *config.Config) *Server {
	delim := byte(',')
	if cfg.Store.CSVDelimiter == ";" {
		delim = ';'
	}
	return &Server{
		cfg:          cfg,
		store:        matrixstore.NewStore(delim),
		sem:          semaphore.NewWeighted(int64(cfg.Server.MaxConcurrentJobs)),
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}
}

// Start binds cfg.Server.Addr and begins serving in a background
// goroutine, mirroring the teacher's listen-then-Serve-in-goroutine
// shape.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Server.Addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			obslog.Log("SERVER", "serve error: %v", err)
		}
	}()

	obslog.Log("SERVER", "reconstruction service listening on %s (pid %d)", s.listener.Addr(), os.Getpid())
	return nil
}

// Addr returns the bound listener address, useful to tests that ask for
// port 0 and need the OS-assigned port back.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/reconstruir", s.handleReconstruir)
	mux.HandleFunc("/saude", s.handleSaude)
	mux.HandleFunc("/metricas", s.handleMetricas)
}

// Wait blocks until Shutdown closes shutdownChan.
func (s *Server) Wait() {
	<-s.shutdownChan
}

// Shutdown gracefully drains in-flight jobs (bounded by ctx) and closes
// the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	if s.listener != nil {
		s.listener.Close()
	}

	close(s.shutdownChan)
	obslog.Log("SERVER", "reconstruction service shut down cleanly")
	runtime.GC()
	return nil
}

// handleSaude is GET /saude: a liveness probe reporting uptime and
// build version.
func (s *Server) handleSaude(w http.ResponseWriter, r *http.Request) {
	resp := saudeResponse{
		Status:  "ok",
		UptimeS: time.Since(s.startTime).Seconds(),
		Version: version.Version,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleMetricas is GET /metricas: the admission and cache counters
// spec.md §8's concurrency invariants need a surface to assert against.
func (s *Server) handleMetricas(w http.ResponseWriter, r *http.Request) {
	hits, misses := s.store.Stats()
	resp := metricasResponse{
		JobsAdmitted:  atomic.LoadInt64(&s.jobsAdmitted),
		JobsRejected:  atomic.LoadInt64(&s.jobsRejected),
		JobsCompleted: atomic.LoadInt64(&s.jobsCompleted),
		JobsFailed:    atomic.LoadInt64(&s.jobsFailed),
		JobsInFlight:  atomic.LoadInt64(&s.jobsInFlight),
		CacheHits:     hits,
		CacheMisses:   misses,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleReconstruir drives a single job through
// Received→Admitted→Loading→Preprocessing→Solving→Rendering→Replying→Done,
// per spec.md §4.6's state machine.
func (s *Server) handleReconstruir(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, report.Failure("corpo da requisição inválido: "+err.Error()))
		return
	}

	checkMemoryAdvisory(s.cfg.Server.MinFreeRAMMB)

	admitCtx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.Server.AdmissionWaitMS)*time.Millisecond)
	defer cancel()

	if err := s.sem.Acquire(admitCtx, 1); err != nil {
		atomic.AddInt64(&s.jobsRejected, 1)
		obslog.Log("ADMIT", "rejecting job %s: pool saturated", req.NomeArquivoBase)
		s.writeError(w, http.StatusServiceUnavailable, report.Overloaded("servidor sobrecarregado, tente novamente em alguns segundos"))
		return
	}
	defer s.sem.Release(1)

	atomic.AddInt64(&s.jobsAdmitted, 1)
	atomic.AddInt64(&s.jobsInFlight, 1)
	defer atomic.AddInt64(&s.jobsInFlight, -1)

	result, err := s.runJob(req)
	if err != nil {
		atomic.AddInt64(&s.jobsFailed, 1)
		s.writeJobError(w, err)
		return
	}
	atomic.AddInt64(&s.jobsCompleted, 1)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// runJob executes the C1→C5 pipeline in order for one admitted request.
func (s *Server) runJob(req jobRequest) (report.JobReport, error) {
	inicio := time.Now()

	hPath, err := pathutil.SafeJoin(s.cfg.Store.DataDir, req.CaminhoH)
	if err != nil {
		return report.JobReport{}, reconerrors.New(reconerrors.Malformed, "server.runJob", err).WithPath(req.CaminhoH)
	}
	gPath, err := pathutil.SafeJoin(s.cfg.Store.DataDir, req.CaminhoG)
	if err != nil {
		return report.JobReport{}, reconerrors.New(reconerrors.Malformed, "server.runJob", err).WithPath(req.CaminhoG)
	}

	obslog.Log("JOB", "loading %s, %s", pathutil.ToRelative(hPath, s.cfg.Store.DataDir), pathutil.ToRelative(gPath, s.cfg.Store.DataDir))

	h, err := s.store.Load(hPath)
	if err != nil {
		return report.JobReport{}, wrapLoadErr(err, req.CaminhoH)
	}
	gVec, err := s.store.Load(gPath)
	if err != nil {
		return report.JobReport{}, wrapLoadErr(err, req.CaminhoG)
	}

	if req.Largura*req.Altura != h.Cols {
		return report.JobReport{}, reconerrors.New(reconerrors.DimensionMismatch, "server.runJob",
			fmt.Errorf("largura*altura=%d != cols(H)=%d", req.Largura*req.Altura, h.Cols))
	}
	if req.S*req.N != len(gVec.Data) {
		return report.JobReport{}, reconerrors.New(reconerrors.DimensionMismatch, "server.runJob",
			fmt.Errorf("s*n=%d != len(g)=%d", req.S*req.N, len(gVec.Data)))
	}

	obslog.Log("JOB", "preprocessing signal for %s", req.NomeArquivoBase)
	gPrime := signalproc.ApplyGain(gVec.Data, req.S, req.N)

	opts := solver.Options{
		MaxIter: s.cfg.Solver.MaxIter,
		Tol:     s.cfg.Solver.Tol,
	}
	if req.Regularizar {
		opts.Lambda = regularize.Lambda(h, gPrime)
	}

	obslog.Log("JOB", "solving for %s (regularizar=%v)", req.NomeArquivoBase, req.Regularizar)
	res := solver.Solve(h, gPrime, opts)

	obslog.Log("JOB", "rendering %s", req.NomeArquivoBase)
	normalized := render.Normalize(res.F)
	if s.cfg.Render.CleanDefault {
		normalized = render.Clean(normalized, req.Largura, req.Altura, s.cfg.Render.PercentileDefault)
	}
	pixels := render.ToPixels(normalized)

	outPath, err := s.writeRaster(req.NomeArquivoBase, pixels, req.Largura, req.Altura)
	if err != nil {
		if re, ok := err.(*reconerrors.Error); ok {
			return report.JobReport{}, re
		}
		return report.JobReport{}, reconerrors.New(reconerrors.RenderFailure, "server.runJob", err)
	}

	fim := time.Now()
	obslog.Log("JOB", "finished %s: started %s, ended %s", req.NomeArquivoBase, report.FormatLocal(inicio), report.FormatLocal(fim))

	return report.Success(outPath, res.WallTime.Seconds(), res.IterationsDone, res.PeakMemDeltaMB, res.ResidualChange, inicio, fim), nil
}

func (s *Server) writeRaster(base string, pixels []uint8, w, h int) (string, error) {
	ext := ".pgm"
	if s.cfg.Render.Format == "png" {
		ext = ".png"
	}
	dir := s.cfg.Store.CacheDir
	if dir == "" {
		dir = "."
	}
	filename := base + "_FINAL" + ext
	path, err := pathutil.SafeJoin(dir, filename)
	if err != nil {
		return "", reconerrors.New(reconerrors.Malformed, "server.writeRaster", err).WithPath(base)
	}

	obslog.Log("JOB", "writing raster to %s", pathutil.ToRelative(path, s.cfg.Store.CacheDir))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if s.cfg.Render.Format == "png" {
		if err := render.WritePNG(f, pixels, w, h); err != nil {
			return "", err
		}
	} else {
		if err := render.WritePGM(f, pixels, w, h); err != nil {
			return "", err
		}
	}
	return filename, nil
}

func wrapLoadErr(err error, path string) error {
	if re, ok := err.(*reconerrors.Error); ok {
		// Report the client-supplied path, not the resolved one.
		return re.WithPath(path)
	}
	return reconerrors.New(reconerrors.NotFound, "matrixstore.Load", err).WithPath(path)
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	re, ok := err.(*reconerrors.Error)
	if !ok {
		re = reconerrors.New(reconerrors.Internal, "server.runJob", err)
	}
	s.writeError(w, re.StatusCode(), report.Failure(re.Message()))
}

func (s *Server) writeError(w http.ResponseWriter, status int, body report.JobReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// checkMemoryAdvisory logs a warning when available RAM drops below
// minFreeMB. Per spec.md §4.6 and §9's open question, this never blocks
// admission — it is advisory only, matching the observed source
// behavior.
func checkMemoryAdvisory(minFreeMB float64) {
	free, ok := freeMemoryMB()
	if !ok {
		return
	}
	if free < minFreeMB {
		obslog.Warn("ADMIT", "free RAM %.1f MiB below advisory floor %.1f MiB; admitting anyway", free, minFreeMB)
	}
}
