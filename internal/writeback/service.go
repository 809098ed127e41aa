// internal/writeback/service.go
package writeback

import (
	"context"
	"sync"
	"time"

	"nuance-pipeline/internal/common/config"
	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/models"
)

// indexTimeout bounds one store write; the queue must keep draining
// even when the store is slow.
const indexTimeout = 10 * time.Second

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Service queues derived knowledge objects and writes them in the
// background. Enqueue never blocks a turn: a full queue drops the
// objects and logs, it does not push back.
type Service struct {
	store  Indexer
	queue  chan models.KnowledgeObject
	logger Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewService(store Indexer, cfg config.WritebackConfig, log Logger) *Service {
	s := &Service{
		store: store,
		queue: make(chan models.KnowledgeObject, cfg.QueueSize),
		logger: log.With(map[string]interface{}{
			"component": "writeback",
		}),
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s
}

// Enqueue submits a batch of objects for background persistence.
// Returns the number of objects accepted.
func (s *Service) Enqueue(objects []models.KnowledgeObject) int {
	accepted := 0
	for _, obj := range objects {
		select {
		case s.queue <- obj:
			accepted++
		default:
			metrics.WritebackResults.WithLabelValues(obj.Type, "dropped").Inc()
			s.logger.Warn("writeback queue full, dropping object", map[string]interface{}{
				"naturalKey": obj.NaturalKey,
				"type":       obj.Type,
			})
		}
	}
	metrics.WritebackQueueDepth.Set(float64(len(s.queue)))
	return accepted
}

// ProcessTurn derives and queues every knowledge object for a finished
// turn. Call after the response is ready to send.
func (s *Service) ProcessTurn(turn models.Turn, resp *models.UnifiedResponse) int {
	objects := BuildObjects(turn, resp)
	if len(objects) == 0 {
		return 0
	}
	return s.Enqueue(objects)
}

// Close drains the queue and stops the workers.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()
	})
}

func (s *Service) worker() {
	defer s.wg.Done()

	for obj := range s.queue {
		s.write(obj)
		metrics.WritebackQueueDepth.Set(float64(len(s.queue)))
	}
}

func (s *Service) write(obj models.KnowledgeObject) {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	if err := s.store.Index(ctx, obj.NaturalKey, obj); err != nil {
		metrics.WritebackResults.WithLabelValues(obj.Type, "error").Inc()
		s.logger.Error("writeback failed", map[string]interface{}{
			"naturalKey": obj.NaturalKey,
			"type":       obj.Type,
			"error":      err.Error(),
		})
		return
	}

	metrics.WritebackResults.WithLabelValues(obj.Type, "success").Inc()
	s.logger.Debug("knowledge object written", map[string]interface{}{
		"naturalKey": obj.NaturalKey,
		"type":       obj.Type,
	})
}
