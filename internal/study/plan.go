package study

import (
	"time"

	"github.com/go-playground/validator/v10"

	"redditstudy/internal/shared"
)

// Plan describes one study: which subreddits to sample, how many posts, and
// how often to revisit them.
type Plan struct {
	Subreddits      []string      `yaml:"subreddits" json:"subreddits" validate:"required,min=1,unique,dive,required,max=21"`
	SampleSize      int           `yaml:"sample_size" json:"sample_size" validate:"gt=0"`
	SampleInterval  time.Duration `yaml:"sample_interval" json:"sample_interval" validate:"gte=0"`
	CollectInterval time.Duration `yaml:"collect_interval" json:"collect_interval" validate:"gte=0"`
	Repeat          int           `yaml:"repeat" json:"repeat" validate:"gte=1"`
	// StepTimeout bounds a single Reddit fetch; zero leaves only the HTTP client timeout.
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout" validate:"gte=0"`
}

// DefaultPlan returns the classic setup: 300 posts from five subreddits,
// one sample every 30s, then 120 passes at 500ms per post.
func DefaultPlan() Plan {
	return Plan{
		Subreddits:      []string{"funny", "pics", "wtf", "gaming", "aww"},
		SampleSize:      300,
		SampleInterval:  30 * time.Second,
		CollectInterval: 500 * time.Millisecond,
		Repeat:          120,
		StepTimeout:     20 * time.Second,
	}
}

var validate = validator.New()

// Validate checks the plan and returns an error wrapping shared.ErrValidation.
func (p Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return shared.MarkKind(err, shared.KindValidation)
	}
	if p.SampleSize < len(p.Subreddits) {
		return shared.Validationf("sample size %d leaves some of %d subreddits without a quota", p.SampleSize, len(p.Subreddits))
	}
	return nil
}

// Quota is how many posts are sampled from each subreddit.
func (p Plan) Quota() int {
	if len(p.Subreddits) == 0 {
		return 0
	}
	return p.SampleSize / len(p.Subreddits)
}
