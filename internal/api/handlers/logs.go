package handlers

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/minifly/minifly/internal/apperror"
	"k8s.io/klog/v2"
)

const heartbeatInterval = 10 * time.Second

// StreamLogs serves container logs as Server-Sent Events with a
// heartbeat comment every 10s (spec §4.5 table, §5 "Cancellation").
// Client disconnect cancels the underlying runtime log reader via the
// request context.
func (h *Handlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := h.Store.GetMachine(id)
	if !ok {
		writeError(w, r, apperror.New(apperror.NotFound, "machine not found"))
		return
	}
	if m.ContainerID == "" {
		writeError(w, r, apperror.New(apperror.NotFound, "machine has no container"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperror.New(apperror.Internal, "streaming unsupported"))
		return
	}

	follow := r.URL.Query().Get("follow") == "true"
	timestamps := r.URL.Query().Get("timestamps") == "true"
	tail := 0
	if t, err := strconv.Atoi(r.URL.Query().Get("tail")); err == nil {
		tail = t
	}

	rc, err := h.Runtime.StreamLogs(r.Context(), m.ContainerID, follow, tail, timestamps)
	if err != nil {
		writeError(w, r, apperror.Wrap(apperror.Runtime, "stream logs", err))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lines := make(chan string)
	go demuxLines(rc, lines)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n")
			flusher.Flush()
		case line, ok := <-lines:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]string{"line": line})
			if err != nil {
				klog.Warningf("marshal log line: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// demuxLines unwraps Docker's multiplexed log stream (an 8-byte header
// per frame: 1 stream-type byte, 3 padding bytes, 4-byte big-endian
// payload length) and emits one line per newline-terminated chunk,
// closing lines when the reader ends.
func demuxLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	reader := bufio.NewReader(r)
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header[4:8])
		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
			if line != "" {
				lines <- line
			}
		}
	}
}
