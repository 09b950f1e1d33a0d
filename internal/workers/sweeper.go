package workers

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldwork/fieldwork-backend/internal/projects/repository"
)

// URLSweeper periodically blanks cached annex URLs whose presign
// lifetime has passed. Read paths blank on the fly as well; the sweeper
// keeps the stored rows from serving stale links to anything that reads
// the table directly.
type URLSweeper struct {
	annexes *repository.AnnexRepository
	cron    *cron.Cron
}

func NewURLSweeper(annexes *repository.AnnexRepository) *URLSweeper {
	return &URLSweeper{
		annexes: annexes,
		cron:    cron.New(),
	}
}

// Start schedules the sweep every ten minutes and once immediately.
func (s *URLSweeper) Start() {
	s.sweep()

	if _, err := s.cron.AddFunc("@every 10m", s.sweep); err != nil {
		log.Printf("Failed to schedule annex url sweeper: %v", err)
		return
	}

	log.Println("Annex URL sweeper started (every 10m)")
	s.cron.Start()
}

func (s *URLSweeper) Stop() {
	s.cron.Stop()
}

func (s *URLSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.annexes.BlankExpiredURLs(ctx)
	if err != nil {
		log.Printf("Annex URL sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Annex URL sweep blanked %d expired urls", n)
	}
}
