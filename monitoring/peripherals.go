package monitoring

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sarchlab/karma/hooking"
	"github.com/sarchlab/karma/karma"
)

// PeripheralInfo summarizes a watched peripheral.
type PeripheralInfo struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	HistoryLen int    `json:"history_len"`
	Error      string `json:"error,omitempty"`
}

// HistoryEntry is a history event rendered for display.
type HistoryEntry struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Kind string    `json:"kind"`
	Msg  string    `json:"msg"`
}

type watchedPeripheral struct {
	id      uint64
	name    string
	device  any
	info    func() PeripheralInfo
	history func() []HistoryEntry
	reset   func()
}

// RegisterKarma makes the device wrapped by k and its history visible to the
// monitor. The monitor's metrics hook is attached to the device, if it is
// hookable, and to the history.
func RegisterKarma[S comparable, I karma.Msg[S], O karma.Msg[S]](
	m *Monitor,
	k *karma.Karma[S, I, O],
) {
	dev := k.Device()
	name := fmt.Sprintf("Peripheral[%d]", dev.ID())
	if named, ok := dev.(interface{ Name() string }); ok {
		name = named.Name()
	}

	p := &watchedPeripheral{
		id:     dev.ID(),
		name:   name,
		device: dev,
		reset:  k.PowerCycle,
	}

	p.info = func() PeripheralInfo {
		info := PeripheralInfo{
			ID:         dev.ID(),
			Name:       name,
			State:      fmt.Sprint(dev.CurrentState()),
			HistoryLen: k.History().Len(),
		}

		if err := dev.Err(); err != nil {
			info.Error = err.Error()
		}

		return info
	}

	p.history = func() []HistoryEntry {
		events := k.History().Events()
		entries := make([]HistoryEntry, 0, len(events))

		for _, e := range events {
			entries = append(entries, HistoryEntry{
				Seq:  e.Seq,
				Time: e.Time,
				Kind: e.Kind.String(),
				Msg:  fmt.Sprint(e.Msg()),
			})
		}

		return entries
	}

	if h, ok := dev.(hooking.Hookable); ok {
		h.AcceptHook(m.metrics)
	}

	k.History().AcceptHook(m.metrics)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.peripherals[p.id] = p
}

func (m *Monitor) listPeripherals(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	infos := make([]PeripheralInfo, 0, len(m.peripherals))
	for _, p := range m.peripherals {
		infos = append(infos, p.info())
	}
	m.lock.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	writeJSON(w, infos)
}

func (m *Monitor) peripheralHistory(w http.ResponseWriter, r *http.Request) {
	p := m.findPeripheralOr404(w, r)
	if p == nil {
		return
	}

	writeJSON(w, p.history())
}

func (m *Monitor) resetPeripheral(w http.ResponseWriter, r *http.Request) {
	p := m.findPeripheralOr404(w, r)
	if p == nil {
		return
	}

	p.reset()
	m.logger.Info().Str("peripheral", p.name).Msg("power cycle requested")

	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) findPeripheralOr404(
	w http.ResponseWriter,
	r *http.Request,
) *watchedPeripheral {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return nil
	}

	m.lock.Lock()
	p := m.peripherals[id]
	m.lock.Unlock()

	if p == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Peripheral not found"))
		dieOnErr(err)
	}

	return p
}
