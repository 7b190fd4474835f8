package rendition_build

import (
	"time"

	"gorm.io/gorm"

	mediarepo "github.com/yungbote/mediaforge-backend/internal/data/repos/media"
	"github.com/yungbote/mediaforge-backend/internal/observability"
	"github.com/yungbote/mediaforge-backend/internal/platform/gcp"
	"github.com/yungbote/mediaforge-backend/internal/platform/localmedia"
	"github.com/yungbote/mediaforge-backend/internal/platform/logger"
	"github.com/yungbote/mediaforge-backend/internal/platform/mediastore"
	"github.com/yungbote/mediaforge-backend/internal/realtime/bus"
)

const JobType = "rendition_build"

type Config struct {
	// TranscodeTimeout bounds one engine invocation.
	TranscodeTimeout time.Duration
	// TranscodeRetries is the number of extra attempts for transient failures.
	TranscodeRetries int
	RetryBackoff     time.Duration
	// ParallelQualities > 1 transcodes qualities concurrently.
	ParallelQualities int
}

type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	videos     mediarepo.VideoRepo
	renditions mediarepo.RenditionRepo
	items      mediarepo.DerivationItemRepo
	tools      localmedia.Tools
	store      *mediastore.Store
	mirror     gcp.BucketService
	events     bus.Bus
	metrics    *observability.Metrics
	cfg        Config
}

// New builds the handler. mirror, events and metrics may be nil.
func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	videos mediarepo.VideoRepo,
	renditions mediarepo.RenditionRepo,
	items mediarepo.DerivationItemRepo,
	tools localmedia.Tools,
	store *mediastore.Store,
	mirror gcp.BucketService,
	events bus.Bus,
	metrics *observability.Metrics,
	cfg Config,
) *Pipeline {
	if cfg.TranscodeTimeout <= 0 {
		cfg.TranscodeTimeout = 30 * time.Minute
	}
	if cfg.TranscodeRetries < 0 {
		cfg.TranscodeRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.ParallelQualities < 1 {
		cfg.ParallelQualities = 1
	}
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", JobType),
		videos:     videos,
		renditions: renditions,
		items:      items,
		tools:      tools,
		store:      store,
		mirror:     mirror,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
	}
}

func (p *Pipeline) Type() string { return JobType }
