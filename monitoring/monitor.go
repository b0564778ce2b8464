// Package monitoring turns a running executor and its peripherals into a web
// server that can be inspected and controlled while the program runs.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sarchlab/karma/executor"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor can turn a running executor into a server and allows external
// monitoring and controlling of it.
type Monitor struct {
	portNumber int
	logger     zerolog.Logger
	metrics    *MetricsHook

	lock        sync.Mutex
	exec        *executor.Executor
	peripherals map[uint64]*watchedPeripheral
	server      *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger:      zerolog.Nop(),
		metrics:     NewMetricsHook(),
		peripherals: make(map[uint64]*watchedPeripheral),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger zerolog.Logger) *Monitor {
	m.logger = logger.With().Str("component", "monitor").Logger()
	return m
}

// Metrics returns the hook that feeds the /metrics endpoint.
func (m *Monitor) Metrics() *MetricsHook {
	return m.metrics
}

// RegisterExecutor registers the executor to monitor and control.
func (m *Monitor) RegisterExecutor(e *executor.Executor) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.exec = e
	e.AcceptHook(m.metrics)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        progressBarIDs.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the HTTP handler serving the monitoring API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseExecutor)
	r.HandleFunc("/api/continue", m.continueExecutor)
	r.HandleFunc("/api/stats", m.executorStats)
	r.HandleFunc("/api/tasks", m.listTasks)
	r.HandleFunc("/api/peripherals", m.listPeripherals)
	r.HandleFunc("/api/peripheral/{id}", m.peripheralDetails)
	r.HandleFunc("/api/history/{id}", m.peripheralHistory)
	r.HandleFunc("/api/reset/{id}", m.resetPeripheral).Methods(http.MethodPost)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", m.metrics.Handler())

	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})(r)
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring with %s\n", url)

	server := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.lock.Lock()
	m.server = server
	m.lock.Unlock()

	go func() {
		err := server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()

	return url
}

// StopServer stops the web server started by StartServer.
func (m *Monitor) StopServer() error {
	m.lock.Lock()
	server := m.server
	m.server = nil
	m.lock.Unlock()

	if server == nil {
		return nil
	}

	return server.Close()
}

func (m *Monitor) executorOr404(w http.ResponseWriter) *executor.Executor {
	m.lock.Lock()
	e := m.exec
	m.lock.Unlock()

	if e == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Executor not registered"))
		dieOnErr(err)
	}

	return e
}

func (m *Monitor) pauseExecutor(w http.ResponseWriter, _ *http.Request) {
	e := m.executorOr404(w)
	if e == nil {
		return
	}

	e.Pause()
	m.logger.Info().Msg("executor paused")

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueExecutor(w http.ResponseWriter, _ *http.Request) {
	e := m.executorOr404(w)
	if e == nil {
		return
	}

	e.Continue()
	m.logger.Info().Msg("executor continued")

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) executorStats(w http.ResponseWriter, _ *http.Request) {
	e := m.executorOr404(w)
	if e == nil {
		return
	}

	writeJSON(w, e.Stats())
}

func (m *Monitor) listTasks(w http.ResponseWriter, _ *http.Request) {
	e := m.executorOr404(w)
	if e == nil {
		return
	}

	tasks := e.Tasks()
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].ID < tasks[j].ID
	})

	writeJSON(w, tasks)
}

func (m *Monitor) peripheralDetails(w http.ResponseWriter, r *http.Request) {
	p := m.findPeripheralOr404(w, r)
	if p == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p.device)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
