package httpapi

import (
	"github.com/mistakeknot/vigil/internal/bus"
	"github.com/mistakeknot/vigil/internal/storage"
)

type Service struct {
	bus     *bus.Bus
	queue   storage.Queue
	threads storage.ThreadStore
}

func NewService(b *bus.Bus, queue storage.Queue, threads storage.ThreadStore) *Service {
	return &Service{bus: b, queue: queue, threads: threads}
}
