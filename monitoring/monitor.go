// Package monitoring turns a running experiment into a web server that shows
// its progress and flows, exports them to Prometheus, and lets a user pause
// and inspect the run.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/netexp/flow"
	"github.com/sarchlab/netexp/monitoring/web"
	"github.com/sarchlab/netexp/network/topology"
	"github.com/sarchlab/netexp/sim/id"
	"github.com/sarchlab/netexp/sim/timing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Controller is the part of the engine the monitor drives.
type Controller interface {
	timing.TimeTeller
	Pause()
	Continue()
}

// Object is anything that can be listed and inspected by name.
type Object interface {
	Name() string
}

// QueueReader reports the occupancy of interface transmit queues.
type QueueReader interface {
	QueueLength(ref topology.InterfaceRef) int
}

// Monitor can turn a run into a server and allows external monitoring and
// controlling of the run.
type Monitor struct {
	engine     Controller
	flows      FlowReporter
	objects    []Object
	topo       *topology.Topology
	queues     QueueReader
	portNumber int
	registry   *prometheus.Registry
	ids        id.IDGenerator

	// controlLock serializes pausing. The engine is paused either because a
	// user asked for it or while a handler reads component state.
	controlLock sync.Mutex
	userPaused  bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		registry: prometheus.NewRegistry(),
		ids:      id.NewIDGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor. Port 0 picks a free
// port.
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

// RegisterEngine registers the engine that runs the experiment.
func (m *Monitor) RegisterEngine(e Controller) {
	m.engine = e
}

// RegisterFlows registers the source of flow summaries and exports them on
// the metrics endpoint.
func (m *Monitor) RegisterFlows(flows FlowReporter) {
	m.flows = flows
	m.registry.MustRegister(NewFlowCollector(flows, m.engine))
}

// RegisterObject registers an object to be listed and inspected.
func (m *Monitor) RegisterObject(o Object) {
	m.objects = append(m.objects, o)
}

// RegisterTopology registers the topology whose interface queues are
// reported.
func (m *Monitor) RegisterTopology(t *topology.Topology, q QueueReader) {
	m.topo = t
	m.queues = q
}

// Registry returns the Prometheus registry served on /metrics.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// CreateProgressBar creates a new progress bar that ends at total.
func (m *Monitor) CreateProgressBar(
	name string,
	total timing.VTimeInSec,
) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.ids.Generate(),
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

// Handler returns the routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/queues", m.listQueues)
	r.HandleFunc("/api/flows", m.listFlows)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.URL())

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("monitor: %v", err)
		}
	}()

	return nil
}

// URL returns the address of the running server, or "" before it starts.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	port := m.listener.Addr().(*net.TCPAddr).Port

	return fmt.Sprintf("http://localhost:%d", port)
}

// Stop shuts the server down. A user pause is released so that the run can
// finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.controlLock.Lock()
	if m.userPaused {
		m.userPaused = false
		m.engine.Continue()
	}
	m.controlLock.Unlock()

	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

// inspect runs f while the engine is between events.
func (m *Monitor) inspect(f func()) {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()

	if m.engine != nil && !m.userPaused {
		m.engine.Pause()
		defer m.engine.Continue()
	}

	f()
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()

	if !m.userPaused {
		m.userPaused = true
		m.engine.Pause()
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.controlLock.Lock()
	defer m.controlLock.Unlock()

	if m.userPaused {
		m.userPaused = false
		m.engine.Continue()
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.engine.Now()
	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.objects))
	for _, o := range m.objects {
		names = append(names, o.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	object := m.findObjectOr404(w, name)
	if object == nil {
		return
	}

	var buf bytes.Buffer

	var err error

	m.inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(object)
		serializer.SetMaxDepth(1)
		err = serializer.Serialize(&buf)
	})

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields := strings.Split(req.FieldName, ".")

	object := m.findObjectOr404(w, req.CompName)
	if object == nil {
		return
	}

	var buf bytes.Buffer

	m.inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(object)
		serializer.SetMaxDepth(1)

		err = serializer.SetEntryPoint(fields)
		if err != nil {
			return
		}

		err = serializer.Serialize(&buf)
	})

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type queueRsp struct {
	Interface string `json:"interface"`
	Node      string `json:"node"`
	Link      int    `json:"link"`
	Level     int    `json:"level"`
	Cap       int    `json:"cap"`
}

func (q queueRsp) percent() float64 {
	return float64(q.Level) / float64(q.Cap)
}

func (m *Monitor) listQueues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := queuesParseParams(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	var queues []queueRsp

	if m.topo != nil {
		m.inspect(func() { queues = m.collectQueues() })
	}

	writeJSON(w, sortAndSelectQueues(queues, sortMethod, limit, offset))
}

func (m *Monitor) collectQueues() []queueRsp {
	var queues []queueRsp

	for _, n := range m.topo.Nodes() {
		for _, i := range n.Interfaces {
			if i.IsLoopback() {
				continue
			}

			l, err := m.topo.Link(i.Link)
			dieOnErr(err)

			queues = append(queues, queueRsp{
				Interface: i.Ref().String(),
				Node:      n.Name,
				Link:      int(i.Link),
				Level:     m.queues.QueueLength(i.Ref()),
				Cap:       l.QueueCapacity,
			})
		}
	}

	return queues
}

func queuesParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = intParam(r, "limit")
	if err != nil {
		return "", 0, 0, err
	}

	offset, err = intParam(r, "offset")
	if err != nil {
		return "", 0, 0, err
	}

	return sortMethod, limit, offset, nil
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}

	return v, nil
}

// sortAndSelectQueues orders the queues and returns a page of them. A zero
// limit returns everything after offset.
func sortAndSelectQueues(
	queues []queueRsp,
	sortMethod string,
	limit, offset int,
) []queueRsp {
	sorted := make([]queueRsp, len(queues))
	copy(sorted, queues)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		if sortMethod == "level" {
			if a.Level != b.Level {
				return a.Level > b.Level
			}

			return a.percent() > b.percent()
		}

		if a.percent() != b.percent() {
			return a.percent() > b.percent()
		}

		return a.Level > b.Level
	})

	if offset > len(sorted) {
		offset = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sorted[offset:end]
}

type flowRsp struct {
	ID          flow.ID     `json:"id"`
	Src         string      `json:"src"`
	Dst         string      `json:"dst"`
	Protocol    string      `json:"protocol"`
	SrcPort     uint16      `json:"src_port"`
	DstPort     uint16      `json:"dst_port"`
	TxPackets   uint64      `json:"tx_packets"`
	TxBytes     uint64      `json:"tx_bytes"`
	RxPackets   uint64      `json:"rx_packets"`
	RxBytes     uint64      `json:"rx_bytes"`
	LostPackets uint64      `json:"lost_packets"`
	Throughput  flow.Metric `json:"throughput_bps"`
	Delay       flow.Metric `json:"average_delay"`
	Jitter      flow.Metric `json:"average_jitter"`
	LossRatio   flow.Metric `json:"loss_ratio"`
}

func (m *Monitor) listFlows(w http.ResponseWriter, _ *http.Request) {
	rsp := []flowRsp{}

	if m.flows != nil {
		for _, s := range m.flows.Report() {
			rsp = append(rsp, flowRsp{
				ID:          s.ID,
				Src:         s.Key.Src.String(),
				Dst:         s.Key.Dst.String(),
				Protocol:    s.Key.Protocol.String(),
				SrcPort:     s.Key.SrcPort,
				DstPort:     s.Key.DstPort,
				TxPackets:   s.TxPackets,
				TxBytes:     s.TxBytes,
				RxPackets:   s.RxPackets,
				RxBytes:     s.RxBytes,
				LostPackets: s.LostPackets,
				Throughput:  s.ThroughputBps,
				Delay:       s.AverageDelay,
				Jitter:      s.AverageJitter,
				LossRatio:   s.LossRatio,
			})
		}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) findObjectOr404(
	w http.ResponseWriter,
	name string,
) Object {
	for _, o := range m.objects {
		if o.Name() == name {
			return o
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

type progressRsp struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	StartTime time.Time         `json:"start_time"`
	Total     timing.VTimeInSec `json:"total"`
	Finished  timing.VTimeInSec `json:"finished"`
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	rsp := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		b.Lock()
		rsp = append(rsp, progressRsp{
			ID:        b.ID,
			Name:      b.Name,
			StartTime: b.StartTime,
			Total:     b.Total,
			Finished:  b.Finished,
		})
		b.Unlock()
	}

	writeJSON(w, rsp)
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
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

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
