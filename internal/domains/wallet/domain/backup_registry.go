package domain

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletbridge/go-backend/internal/domains/contracts"
)

const (
	DefaultBackupChunkSize = 64 * 1024
	MaxBackupChunkSize     = 1 << 20
)

type BackupDirection string

const (
	BackupRead  BackupDirection = "read"
	BackupWrite BackupDirection = "write"
)

// BackupDescriptor names a backup stream of a master wallet.
type BackupDescriptor struct {
	MasterWalletID string
	Name           string
}

type BackupHandleInfo struct {
	ID             string
	Direction      BackupDirection
	MasterWalletID string
	Name           string
	Closed         bool
	Bytes          int64
	OpenedAt       time.Time
}

// StepRequest carries a chunk to write, or the size of the chunk to read.
type StepRequest struct {
	Chunk []byte
	Size  int
}

type StepResult struct {
	Chunk   []byte
	Written int
	EOF     bool
}

type backupHandle struct {
	info   BackupHandleInfo
	writer io.WriteCloser
	reader io.ReadCloser
}

// BackupRegistry tracks open backup streams by opaque handle id. The ids
// of closed handles are remembered for the registry's lifetime so a late
// step is reported as closed rather than unknown. Calls must be serialized
// by the caller.
type BackupRegistry struct {
	logger  *slog.Logger
	now     func() time.Time
	handles map[string]*backupHandle
	closed  map[string]struct{}
}

func NewBackupRegistry(logger *slog.Logger) *BackupRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupRegistry{
		logger:  logger,
		now:     time.Now,
		handles: make(map[string]*backupHandle),
		closed:  make(map[string]struct{}),
	}
}

// OpenWriter allows one open writer per master wallet. open is invoked
// only after the registry preconditions hold.
func (r *BackupRegistry) OpenWriter(master *MasterWalletHandle, name string, open func(masterWalletID, name string) (io.WriteCloser, error)) (BackupHandleInfo, error) {
	if !master.Alive() {
		return BackupHandleInfo{}, contracts.ErrMasterWalletNotFound
	}
	if err := validateBackupName(name); err != nil {
		return BackupHandleInfo{}, err
	}
	for _, h := range r.handles {
		if h.info.Direction == BackupWrite && h.info.MasterWalletID == master.ID() {
			return BackupHandleInfo{}, fmt.Errorf("%w: %s", contracts.ErrBackupAlreadyOpen, master.ID())
		}
	}
	w, err := open(master.ID(), name)
	if err != nil {
		return BackupHandleInfo{}, fmt.Errorf("%w: %v", contracts.ErrBackupIO, err)
	}
	h := &backupHandle{info: r.newInfo(BackupWrite, master.ID(), name), writer: w}
	r.handles[h.info.ID] = h
	return h.info, nil
}

func (r *BackupRegistry) OpenReader(source BackupDescriptor, open func(masterWalletID, name string) (io.ReadCloser, error)) (BackupHandleInfo, error) {
	if strings.TrimSpace(source.MasterWalletID) == "" {
		return BackupHandleInfo{}, fmt.Errorf("%w: master wallet id is required", contracts.ErrInvalidSource)
	}
	if err := validateBackupName(source.Name); err != nil {
		return BackupHandleInfo{}, fmt.Errorf("%w: %v", contracts.ErrInvalidSource, err)
	}
	rc, err := open(source.MasterWalletID, source.Name)
	if err != nil {
		return BackupHandleInfo{}, fmt.Errorf("%w: %v", contracts.ErrInvalidSource, err)
	}
	h := &backupHandle{info: r.newInfo(BackupRead, source.MasterWalletID, source.Name), reader: rc}
	r.handles[h.info.ID] = h
	return h.info, nil
}

func (r *BackupRegistry) newInfo(dir BackupDirection, masterID, name string) BackupHandleInfo {
	return BackupHandleInfo{
		ID:             "bak_" + uuid.NewString(),
		Direction:      dir,
		MasterWalletID: masterID,
		Name:           name,
		OpenedAt:       r.now().UTC(),
	}
}

// Step advances the single cursor of a handle. Writers consume req.Chunk,
// readers return up to req.Size bytes and report EOF once drained.
func (r *BackupRegistry) Step(id string, req StepRequest) (StepResult, error) {
	h, ok := r.handles[id]
	if !ok {
		if _, closed := r.closed[id]; closed {
			return StepResult{}, fmt.Errorf("%w: %s", contracts.ErrBackupClosed, id)
		}
		return StepResult{}, fmt.Errorf("%w: %s", contracts.ErrBackupHandleNotFound, id)
	}
	if h.info.Direction == BackupWrite {
		n, err := h.writer.Write(req.Chunk)
		h.info.Bytes += int64(n)
		if err != nil {
			return StepResult{Written: n}, fmt.Errorf("%w: %v", contracts.ErrBackupIO, err)
		}
		return StepResult{Written: n}, nil
	}

	size := req.Size
	if size <= 0 {
		size = DefaultBackupChunkSize
	}
	if size > MaxBackupChunkSize {
		size = MaxBackupChunkSize
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(h.reader, buf)
	h.info.Bytes += int64(n)
	switch {
	case err == nil:
		return StepResult{Chunk: buf[:n]}, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return StepResult{Chunk: buf[:n]}, nil
	case errors.Is(err, io.EOF):
		return StepResult{EOF: true}, nil
	default:
		return StepResult{Chunk: buf[:n]}, fmt.Errorf("%w: %v", contracts.ErrBackupIO, err)
	}
}

// Close is idempotent for known handles. The handle is marked closed even
// when releasing the underlying stream fails.
func (r *BackupRegistry) Close(id string) error {
	h, ok := r.handles[id]
	if !ok {
		if _, closed := r.closed[id]; closed {
			return nil
		}
		return fmt.Errorf("%w: %s", contracts.ErrBackupHandleNotFound, id)
	}
	if err := r.release(h); err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrBackupIO, err)
	}
	return nil
}

// release drops the stream and keeps only the id as closed.
func (r *BackupRegistry) release(h *backupHandle) error {
	h.info.Closed = true
	delete(r.handles, h.info.ID)
	r.closed[h.info.ID] = struct{}{}
	if h.writer != nil {
		return h.writer.Close()
	}
	return h.reader.Close()
}

// Open lists the handles that have not been closed, oldest first.
func (r *BackupRegistry) Open() []BackupHandleInfo {
	out := make([]BackupHandleInfo, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.info)
	}
	slices.SortFunc(out, func(a, b BackupHandleInfo) int {
		if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Known reports whether id was ever issued by this registry.
func (r *BackupRegistry) Known(id string) bool {
	if _, ok := r.handles[id]; ok {
		return true
	}
	_, ok := r.closed[id]
	return ok
}

// CloseForMaster releases the open handles of one master wallet.
func (r *BackupRegistry) CloseForMaster(masterWalletID string) []string {
	var ids []string
	for _, info := range r.Open() {
		if info.MasterWalletID != masterWalletID {
			continue
		}
		if err := r.release(r.handles[info.ID]); err != nil {
			r.logger.Warn("backup handle release failed",
				"component", "wallet.backup",
				"handle_id", info.ID,
				"error", err.Error(),
			)
		}
		ids = append(ids, info.ID)
	}
	return ids
}

// ForceCloseAll closes every open handle, e.g. on manager shutdown. The
// closures are logged as abnormal; release errors are logged and dropped.
func (r *BackupRegistry) ForceCloseAll() []string {
	open := r.Open()
	ids := make([]string, 0, len(open))
	for _, info := range open {
		h := r.handles[info.ID]
		err := r.release(h)
		attrs := []any{
			"component", "wallet.backup",
			"handle_id", info.ID,
			"master_wallet_id", info.MasterWalletID,
			"direction", string(info.Direction),
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		r.logger.Warn("backup handle closed abnormally", attrs...)
		ids = append(ids, info.ID)
	}
	return ids
}

func validateBackupName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: backup name %q", contracts.ErrInvalidArgument, name)
	}
	return nil
}
