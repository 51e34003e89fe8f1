package mailbox

import (
	"fmt"
	"hash/fnv"

	"github.com/gen2brain/shm"
)

// sysvSegment — System V сегмент; ключ выводится из имени, чтобы процессы
// находили один и тот же сегмент без обмена идентификаторами.
type sysvSegment struct {
	id   int
	mem  []byte
	name string
}

func sysvKey(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	// ключ 0 зарезервирован под IPC_PRIVATE
	k := int(h.Sum32() & 0x7fffffff)
	if k == 0 {
		k = 1
	}
	return k
}

func attachSysV(name string, size int) (*sysvSegment, error) {
	id, err := shm.Get(sysvKey(name), size, shm.IPC_CREAT|0o666)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}
	mem, err := shm.At(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat: %w", err)
	}
	return &sysvSegment{id: id, mem: mem, name: name}, nil
}

func (s *sysvSegment) Bytes() []byte { return s.mem }

func (s *sysvSegment) Detach() error {
	if s.mem == nil {
		return nil
	}
	err := shm.Dt(s.mem)
	s.mem = nil
	return err
}

func (s *sysvSegment) Remove() error { return shm.Rm(s.id) }
