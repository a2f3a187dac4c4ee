package services

import (
	"context"
	"os"
	"sync"

	"gallery/internal/imagepipe"
	"gallery/internal/store"

	log "github.com/sirupsen/logrus"
)

// ThumbnailJob asks a worker to make sure one artwork has a thumbnail.
type ThumbnailJob struct {
	ArtworkID int64
	ImagePath string
	Title     string
}

type OnComplete func(job ThumbnailJob, thumbPath string)

// ThumbnailProcessor renders missing thumbnails off the request path. The
// request handlers create thumbnails synchronously for fresh uploads; this
// pool exists to backfill artworks whose thumbnail file disappeared or was
// never generated (e.g. images present before a deploy).
type ThumbnailProcessor struct {
	jobs       chan ThumbnailJob
	wg         sync.WaitGroup
	thumbr     *imagepipe.Thumbnailer
	maxWorkers int
	onComplete OnComplete
	once       sync.Once
}

func NewThumbnailProcessor(thumbr *imagepipe.Thumbnailer, maxWorkers int, onComplete OnComplete) *ThumbnailProcessor {
	p := &ThumbnailProcessor{
		jobs:       make(chan ThumbnailJob, 100),
		thumbr:     thumbr,
		maxWorkers: maxWorkers,
		onComplete: onComplete,
	}
	p.startWorkers()
	return p
}

func (p *ThumbnailProcessor) startWorkers() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *ThumbnailProcessor) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		thumbPath, err := p.thumbr.Ensure(job.ImagePath)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"worker":  id,
				"artwork": job.ArtworkID,
			}).Warn("thumbnail backfill failed")
			continue
		}
		if p.onComplete != nil {
			p.onComplete(job, thumbPath)
		}
	}
}

func (p *ThumbnailProcessor) Queue(job ThumbnailJob) {
	select {
	case p.jobs <- job:
	default:
		log.WithField("artwork", job.ArtworkID).Warn("thumbnail queue full, skipping")
	}
}

// BackfillMissing queues every artwork whose thumbnail file does not exist
// yet. Called once at startup.
func (p *ThumbnailProcessor) BackfillMissing(ctx context.Context, artworks *store.ArtworkStore) {
	list, err := artworks.List(ctx, "", "position")
	if err != nil {
		log.WithError(err).Warn("thumbnail backfill: listing artworks failed")
		return
	}

	count := 0
	for _, a := range list {
		thumbPath, err := p.thumbr.Path(a.ImagePath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(thumbPath); err == nil {
			continue
		}
		title := ""
		if a.Title != nil {
			title = *a.Title
		}
		p.Queue(ThumbnailJob{ArtworkID: a.ID, ImagePath: a.ImagePath, Title: title})
		count++
	}
	if count > 0 {
		log.WithField("count", count).Info("queued artworks for thumbnail backfill")
	}
}

func (p *ThumbnailProcessor) Shutdown() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
