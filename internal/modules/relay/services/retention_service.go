package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dibantu/wa-relay/internal/modules/relay/repositories"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// RetentionService prunes conversations that have been idle longer than the
// configured retention window. The per-pair 50-entry cap is enforced on
// append; this sweeper removes whole stale conversations.
type RetentionService struct {
	cron             *cron.Cron
	conversationRepo repositories.ConversationRepo
	retentionDays    int
}

func NewRetentionService(conversationRepo repositories.ConversationRepo, retentionDays int) *RetentionService {
	return &RetentionService{
		cron:             cron.New(cron.WithSeconds()),
		conversationRepo: conversationRepo,
		retentionDays:    retentionDays,
	}
}

// Start schedules the nightly sweep. retentionDays <= 0 disables the sweeper.
func (s *RetentionService) Start() error {
	if s.retentionDays <= 0 {
		log.Info().Msg("conversation retention sweeper disabled")
		return nil
	}

	// 03:00 every night
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.sweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	log.Info().Int("retention_days", s.retentionDays).Msg("conversation retention sweeper started")
	return nil
}

func (s *RetentionService) Stop() {
	s.cron.Stop()
}

func (s *RetentionService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.conversationRepo.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}

	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("retention sweep completed")
}
