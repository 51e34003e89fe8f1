package supervisor

import (
	"EyeWear/internal/config"
	"EyeWear/internal/ipc/mailbox"
	"EyeWear/internal/ipc/protocol"
	"EyeWear/internal/ipc/registry"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownRole = errors.New("supervisor: unknown role")
	ErrRoleExited  = errors.New("supervisor: role exited")
	ErrNotClaimed  = errors.New("supervisor: registry entry not claimed")
)

// Бинари ролей. emulator занимает роль earbud_input вместо аппаратного ввода.
var binaries = map[string]string{
	protocol.RoleCall:  "call-client",
	protocol.RoleOcr:   "ocr-process",
	protocol.RoleInput: "earbud-input",
	"emulator":         "emulator",
}

// Spec — как запустить одну роль.
type Spec struct {
	Role string
	Path string
	Args []string
}

// Specs строит список запуска в порядке cfg.Roles. args передаются каждой роли.
func Specs(cfg config.SupervisorConfig, args []string) ([]Spec, error) {
	dir := cfg.BinDir
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("supervisor: locate binaries: %w", err)
		}
		dir = filepath.Dir(exe)
	}

	specs := make([]Spec, 0, len(cfg.Roles))
	for _, role := range cfg.Roles {
		bin, ok := binaries[role]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		specs = append(specs, Spec{Role: role, Path: filepath.Join(dir, bin), Args: args})
	}
	return specs, nil
}

type exit struct {
	role string
	err  error
}

type child struct {
	spec Spec
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor — процесс eyewear: владелец всех ящиков. Запускает роли по
// очереди и гасит все, когда любая из них завершилась.
type Supervisor struct {
	cfg    config.SupervisorConfig
	reg    *registry.Registry
	boxes  *mailbox.Set
	specs  []Spec
	logger *zap.SugaredLogger

	claim *registry.Handle

	mu       sync.Mutex
	children []*child
}

func New(cfg config.SupervisorConfig, reg *registry.Registry, boxes *mailbox.Set, specs []Spec, logger *zap.SugaredLogger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Supervisor{cfg: cfg, reg: reg, boxes: boxes, specs: specs, logger: logger}
}

// Claim регистрирует супервизор. Маркер умершего супервизора убирается,
// маркер живого оставляется как есть: тогда ErrAlreadyRegistered, и
// процесс не должен трогать ящики.
func (s *Supervisor) Claim() (*registry.Handle, error) {
	h, err := s.reg.Register(protocol.RoleSupervisor)
	if errors.Is(err, registry.ErrAlreadyRegistered) {
		removed, sweepErr := s.reg.Sweep(protocol.RoleSupervisor)
		if sweepErr != nil {
			return nil, errors.Join(err, sweepErr)
		}
		if len(removed) == 0 {
			return nil, err
		}
		s.logger.Warnw("Previous supervisor died without cleanup, marker removed", "path", s.reg.Path(protocol.RoleSupervisor))
		h, err = s.reg.Register(protocol.RoleSupervisor)
	}
	if err != nil {
		return nil, err
	}
	s.claim = h
	return h, nil
}

// Prepare убирает маркеры умерших ролей и создаёт обнулённые ящики.
// Только после успешного Claim.
func (s *Supervisor) Prepare() error {
	if s.claim == nil {
		return ErrNotClaimed
	}
	removed, err := s.reg.Sweep(protocol.RoleCall, protocol.RoleOcr, protocol.RoleInput)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		s.logger.Infow("Stale process markers removed", "names", removed)
	}

	for _, name := range protocol.Mailboxes() {
		mb, err := s.boxes.Ensure(name)
		if err != nil {
			return fmt.Errorf("supervisor: mailbox %s: %w", name, err)
		}
		if err := mb.Write(int32(protocol.None)); err != nil {
			return fmt.Errorf("supervisor: reset %s: %w", name, err)
		}
	}
	s.logger.Infow("Mailboxes ready", "mailboxes", protocol.Mailboxes())
	return nil
}

// Run запускает роли и ждёт первого завершения или отмены ctx, затем
// останавливает остальные.
func (s *Supervisor) Run(ctx context.Context) error {
	exits := make(chan exit, len(s.specs))
	defer s.stopAll()

	for i, spec := range s.specs {
		if i > 0 && s.cfg.StartDelay > 0 {
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			case e := <-exits:
				return s.exited(e)
			case <-time.After(s.cfg.StartDelay):
			}
		}
		if err := s.start(spec, exits); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		s.logger.Infow("Supervisor stopping", "reason", context.Cause(ctx))
		return context.Cause(ctx)
	case e := <-exits:
		return s.exited(e)
	}
}

func (s *Supervisor) exited(e exit) error {
	s.logger.Warnw("Role exited, terminating all", "role", e.role, "error", e.err)
	if e.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRoleExited, e.role, e.err)
	}
	return fmt.Errorf("%w: %s", ErrRoleExited, e.role)
}

func (s *Supervisor) start(spec Spec, exits chan<- exit) error {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start %s: %w", spec.Role, err)
	}
	c := &child{spec: spec, cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.children = append(s.children, c)
	s.mu.Unlock()
	s.logger.Infow("Role started", "role", spec.Role, "pid", cmd.Process.Pid, "path", spec.Path)

	go func() {
		err := cmd.Wait()
		close(c.done)
		exits <- exit{role: spec.Role, err: err}
	}()
	return nil
}

// stopAll шлёт SIGTERM всем ролям, ждёт StopTimeout и добивает оставшихся.
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for _, c := range children {
		select {
		case <-c.done:
			continue
		default:
		}
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warnw("Failed to terminate role", "role", c.spec.Role, "error", err)
		}
	}

	timer := time.NewTimer(max(s.cfg.StopTimeout, 0))
	defer timer.Stop()
	expired := false
	for _, c := range children {
		if !expired {
			select {
			case <-c.done:
				continue
			case <-timer.C:
				expired = true
			}
		}
		select {
		case <-c.done:
		default:
			s.logger.Warnw("Role did not stop in time, killing", "role", c.spec.Role, "timeout", s.cfg.StopTimeout.String())
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	}
	if len(children) > 0 {
		s.logger.Infow("All roles stopped", "count", len(children))
	}
}
