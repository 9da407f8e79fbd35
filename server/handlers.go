// Package server is the HTTP face of the staging pipeline: the folder
// picker posts its selection here, and UI clients follow progress over a
// websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/staging"
)

func sub(component string) *slog.Logger {
	return logging.Sub(component)
}

// maxMemory is how much of a multipart selection is held in memory before
// parts spill to temp files.
const maxMemory = 32 << 20

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State        string                   `json:"state"`
	DataDir      string                   `json:"dataDir"`
	Files        []staging.InventoryEntry `json:"files"`
	TotalSize    int64                    `json:"totalSize"`
	DiskTotal    uint64                   `json:"diskTotal"`
	DiskFree     uint64                   `json:"diskFree"`
	RecentErrors []logging.LogEntry       `json:"recentErrors"`
}

// SelectionResponse is the body of a successful POST /api/selection.
type SelectionResponse struct {
	Files     int   `json:"files"`
	Bytes     int64 `json:"bytes"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// ErrorResponse carries a failure to the UI.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handlers holds the HTTP handlers for the staging API.
type Handlers struct {
	ctrl     *staging.Controller
	diskPath string // host path whose usage is reported; empty skips it
}

// NewHandlers creates the staging HTTP handlers.
func NewHandlers(ctrl *staging.Controller, diskPath string) *Handlers {
	return &Handlers{ctrl: ctrl, diskPath: diskPath}
}

// HandleStatus handles GET /api/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	l := sub("handlers")
	l.Debug("HTTP status")

	resp := StatusResponse{
		State:        h.ctrl.State().String(),
		DataDir:      h.ctrl.DataDir(),
		Files:        []staging.InventoryEntry{},
		RecentErrors: logging.RecentErrors(),
	}
	if files, err := h.ctrl.Inventory(); err == nil {
		resp.Files = files
		resp.TotalSize = staging.TotalSize(files)
	} else {
		l.Debug("status: inventory unavailable", "err", err)
	}
	if h.diskPath != "" {
		if usage, err := disk.UsageWithContext(r.Context(), h.diskPath); err == nil {
			resp.DiskTotal = usage.Total
			resp.DiskFree = usage.Free
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSelection handles POST /api/selection: a multipart body of
// alternating "path" fields and "file" parts, in picker order.
func (h *Handlers) HandleSelection(w http.ResponseWriter, r *http.Request) {
	l := sub("handlers")

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		l.Warn("selection: bad multipart body", "err", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid multipart body"})
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	files, err := pickedFromForm(r.MultipartForm)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	l.Info("HTTP selection", "files", len(files))

	res, err := h.ctrl.Select(r.Context(), files)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectionResponse{
		Files:     res.Files,
		Bytes:     res.Bytes,
		ElapsedMs: res.Elapsed.Milliseconds(),
	})
}

// pickedFromForm pairs each "path" value with the "file" part at the same
// index. A missing path falls back to the part's filename.
func pickedFromForm(form *multipart.Form) ([]staging.PickedFile, error) {
	parts := form.File["file"]
	paths := form.Value["path"]
	if len(paths) > len(parts) {
		return nil, errors.New("more paths than files")
	}
	files := make([]staging.PickedFile, len(parts))
	for i, fh := range parts {
		rel := fh.Filename
		if i < len(paths) && paths[i] != "" {
			rel = paths[i]
		}
		files[i] = staging.PickedFile{
			RelativePath: rel,
			Size:         fh.Size,
			Open:         func() (io.ReadCloser, error) { return fh.Open() },
		}
	}
	return files, nil
}

// HandleStart handles POST /api/start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	sub("handlers").Info("HTTP start")
	if err := h.ctrl.Start(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.ctrl.State().String()})
}

// HandleWipe handles DELETE /api/files?confirm=true.
func (h *Handlers) HandleWipe(w http.ResponseWriter, r *http.Request) {
	l := sub("handlers")
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	l.Info("HTTP wipe", "confirmed", confirmed)

	res, err := h.ctrl.Wipe(r.Context(), func(string) bool { return confirmed })
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": len(res.Removed),
		"status":  res.Status(),
		"state":   h.ctrl.State().String(),
	})
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	l := sub("handlers")
	var rej *staging.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: string(rej.Reason), Message: rej.Message})
	case errors.Is(err, staging.ErrNotConfirmed):
		writeJSON(w, http.StatusPreconditionRequired, ErrorResponse{Error: err.Error(), Message: staging.WipePrompt})
	case errors.Is(err, staging.ErrInvalidState):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Reason: h.ctrl.State().String()})
	case errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "selection replaced or cancelled"})
	case errors.Is(err, staging.ErrFlush):
		l.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Message: staging.MsgSyncFailed})
	default:
		l.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// HandleEvents handles GET /api/events: a websocket carrying every bus
// event as JSON, starting with the current state.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	l := sub("handlers")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	bus := h.ctrl.Bus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	// Reader: only there to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		return conn.WriteJSON(v)
	}
	if err := send(staging.Event{Type: staging.EventState, State: h.ctrl.State().String()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := send(event); err != nil {
				l.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
