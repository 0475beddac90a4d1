package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"aina-notebook/internal/generator"
	"aina-notebook/internal/metrics"
	"aina-notebook/internal/model"
	"aina-notebook/internal/retry"
	"aina-notebook/internal/storage"
	"aina-notebook/pkg/logger"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aina-notebook/service")

var (
	ErrEmptyTopic      = errors.New("topic is required")
	ErrUnknownStyle    = errors.New("unknown style")
	ErrSlideOutOfRange = errors.New("slide index out of range")
	ErrSlideHasImage   = errors.New("slide already has an image")
)

// ContentGenerator produces the slide drafts of a presentation in one request.
type ContentGenerator interface {
	Generate(ctx context.Context, topic string, lang model.Language, band model.AgeBand) ([]model.SlideDraft, error)
}

// ImageGenerator renders one slide image and returns it as a data URL.
type ImageGenerator interface {
	Generate(ctx context.Context, imagePrompt string, style model.Style) (string, error)
}

type Options struct {
	// ImagePolicy drives the per-slide image requests of a full run. Manual
	// retries always make a single attempt.
	ImagePolicy     retry.Policy
	DefaultLanguage model.Language
	DefaultAgeBand  string
	// EventBuffer sizes the channel returned by Start.
	EventBuffer int
	Now         func() time.Time
}

// Job is a validated generation request.
type Job struct {
	Topic    string
	Style    model.Style
	Language model.Language
	AgeBand  model.AgeBand
}

// RetryResult is the outcome of a successful manual slide retry. Warning is
// set when the image was produced but could not be saved.
type RetryResult struct {
	Presentation *model.Presentation
	Warning      string
}

// GenerationService turns a topic into an illustrated presentation: one text
// request, then one image request per slide in order, then a history write.
type GenerationService struct {
	content  ContentGenerator
	images   ImageGenerator
	store    storage.HistoryStore
	opts     Options
	state    *machine
	progress progressReporter
	wg       sync.WaitGroup
}

func NewGenerationService(content ContentGenerator, images ImageGenerator, store storage.HistoryStore, opts Options) *GenerationService {
	if opts.ImagePolicy.MaxAttempts == 0 {
		opts.ImagePolicy = retry.ImagePolicy(generator.Retryable)
	}
	if opts.ImagePolicy.Retryable == nil {
		opts.ImagePolicy.Retryable = generator.Retryable
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = model.LanguageCatalan
	}
	if opts.DefaultAgeBand == "" {
		opts.DefaultAgeBand = model.DefaultAgeBand
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &GenerationService{
		content: content,
		images:  images,
		store:   store,
		opts:    opts,
		state:   newMachine(),
	}
}

// NewJob validates a request and fills in defaults.
func (s *GenerationService) NewJob(req model.GenerateRequest) (Job, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return Job{}, ErrEmptyTopic
	}

	style, ok := model.FindStyle(req.Style)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownStyle, req.Style)
	}

	lang := s.opts.DefaultLanguage
	if req.Language != "" {
		lang = model.ParseLanguage(req.Language)
	}

	band := req.AgeBand
	if band == "" {
		band = s.opts.DefaultAgeBand
	}

	return Job{
		Topic:    topic,
		Style:    style,
		Language: lang,
		AgeBand:  model.FindAgeBand(band),
	}, nil
}

// Start claims the generation slot and runs the pipeline in the background.
// The run is detached from ctx cancellation; events arrive in order on the
// returned channel, which is closed after the final done or error event.
// The caller must drain the channel.
func (s *GenerationService) Start(ctx context.Context, job Job) (<-chan model.GenerationEvent, error) {
	if err := s.state.acquire(StateGeneratingText); err != nil {
		return nil, err
	}

	events := make(chan model.GenerationEvent, s.opts.EventBuffer)
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(events)

		s.run(runCtx, job, func(e model.GenerationEvent) {
			events <- e
		})
	}()

	return events, nil
}

// Generate runs the pipeline synchronously, reporting events through emit.
func (s *GenerationService) Generate(ctx context.Context, job Job, emit func(model.GenerationEvent)) (*model.Presentation, error) {
	if err := s.state.acquire(StateGeneratingText); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = func(model.GenerationEvent) {}
	}
	return s.run(ctx, job, emit)
}

// Status reports the current state and how the last run ended.
func (s *GenerationService) Status() model.StatusResponse {
	state, last := s.state.snapshot()
	return model.StatusResponse{
		State:       state.String(),
		LastOutcome: last.String(),
		Busy:        state.IsActive(),
	}
}

// Wait blocks until background runs finish or ctx is done.
func (s *GenerationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one pipeline; the caller already holds the slot.
func (s *GenerationService) run(ctx context.Context, job Job, emit func(model.GenerationEvent)) (result *model.Presentation, err error) {
	ctx, span := tracer.Start(ctx, "generation.Run", trace.WithAttributes(
		attribute.String("topic", job.Topic),
		attribute.String("style", job.Style.Name),
		attribute.String("language", string(job.Language)),
		attribute.String("age_band", job.AgeBand.Name),
	))
	defer span.End()

	start := s.opts.Now()
	log := logger.WithFields(map[string]interface{}{
		"topic": job.Topic,
		"style": job.Style.Name,
	})

	// The closing event goes out after the slot is free, so a client that
	// reacts to it can start the next run right away.
	var final *model.GenerationEvent
	defer func() {
		outcome := StateDone
		if err != nil {
			outcome = StateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.GenerationsTotal.WithLabelValues(outcome.String()).Inc()
		metrics.GenerationDuration.WithLabelValues(outcome.String()).Observe(time.Since(start).Seconds())
		s.state.release(outcome)
		if final != nil {
			emit(*final)
		}
	}()

	emit(progressEvent(s.progress.content(job.Language)))

	drafts, err := s.content.Generate(ctx, job.Topic, job.Language, job.AgeBand)
	if err == nil && len(drafts) == 0 {
		err = generator.NewError(generator.KindContent, generator.ErrNoSlides)
	}
	if err != nil {
		kind := generator.KindOf(err)
		if kind == generator.KindUnknown {
			kind = generator.KindContent
			err = generator.NewError(kind, err)
		}
		log.WithField("error", err.Error()).Error("Text phase failed")
		final = errorEvent(kind, job.Language)
		return nil, err
	}

	metrics.SlidesPerPresentation.Observe(float64(len(drafts)))
	if err := s.state.advance(StateGeneratingImages); err != nil {
		final = errorEvent(generator.KindUnknown, job.Language)
		return nil, err
	}

	p := model.NewShell(model.NewPresentationID(s.opts.Now()), job.Topic, job.Style, job.Language, drafts)
	span.SetAttributes(attribute.String("presentation.id", p.ID), attribute.Int("slides", len(p.Slides)))
	log = log.WithField("presentation_id", p.ID)
	log.Infof("Text phase produced %d slides", len(p.Slides))
	emit(snapshotEvent(p, nil))

	for i := range p.Slides {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.WithField("slide", i).Warn("Image phase cancelled")
			final = errorEvent(generator.KindUnknown, job.Language)
			return nil, ctxErr
		}
		emit(progressEvent(s.progress.image(job.Language, i, len(p.Slides))))

		url, err := s.renderSlide(ctx, p.Slides[i], job.Style, s.opts.ImagePolicy, log.WithField("slide", i))
		switch {
		case err != nil && ctx.Err() != nil:
			log.WithField("slide", i).Warn("Image phase cancelled")
			final = errorEvent(generator.KindUnknown, job.Language)
			return nil, ctx.Err()
		case err == nil:
			p.Slides[i].ImageURL = url
			metrics.SlideImagesTotal.WithLabelValues("pipeline", "ok").Inc()
		case generator.KindOf(err) == generator.KindAuth:
			log.WithField("error", err.Error()).Error("Image phase aborted")
			final = errorEvent(generator.KindAuth, job.Language)
			return nil, err
		default:
			kind := imageFailureKind(err)
			metrics.SlideImagesTotal.WithLabelValues("pipeline", string(kind)).Inc()
			emit(warningEvent(kind, job.Language, &i))
		}

		emit(snapshotEvent(p, &i))
	}

	emit(progressEvent(s.progress.saving(job.Language, len(p.Slides))))

	saveErr := s.store.Append(ctx, p.Clone())
	metrics.HistoryWritesTotal.WithLabelValues("append", metrics.Status(saveErr)).Inc()
	if saveErr != nil {
		log.WithField("error", saveErr.Error()).Error("Failed to save presentation")
		emit(warningEvent(generator.KindPersistence, job.Language, nil))
	}

	if err := s.state.advance(StateDone); err != nil {
		final = errorEvent(generator.KindUnknown, job.Language)
		return nil, err
	}

	log.WithField("missing_images", p.MissingImages()).Info("Presentation generated")
	done := model.NewEvent(model.EventDone)
	done.Presentation = p.Clone()
	final = &done

	return p, nil
}

// renderSlide requests one image under policy, timing every attempt.
func (s *GenerationService) renderSlide(ctx context.Context, slide model.Slide, style model.Style, policy retry.Policy, log *logrus.Entry) (string, error) {
	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		start := time.Now()
		url, err := s.images.Generate(ctx, slide.ImagePrompt, style)
		metrics.ImageCallDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			log.Warnf("Image attempt %d failed: %v", attempt, err)
		}
		return url, err
	})
}

// RetrySlide regenerates the missing image of one slide of a saved
// presentation. It shares the generation slot, so it fails with ErrBusy
// while a full run is active. On image failure nothing is changed.
func (s *GenerationService) RetrySlide(ctx context.Context, id string, index int) (*RetryResult, error) {
	if state, _ := s.state.snapshot(); state.IsActive() {
		return nil, ErrBusy
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(p.Slides) {
		return nil, ErrSlideOutOfRange
	}
	if p.Slides[index].HasImage() {
		return nil, ErrSlideHasImage
	}

	if err := s.state.acquire(StateGeneratingImages); err != nil {
		return nil, err
	}
	outcome := StateFailed
	defer func() { s.state.release(outcome) }()

	ctx, span := tracer.Start(ctx, "generation.RetrySlide", trace.WithAttributes(
		attribute.String("presentation.id", id),
		attribute.Int("slide", index),
	))
	defer span.End()

	log := logger.WithFields(map[string]interface{}{
		"presentation_id": id,
		"slide":           index,
	})

	url, err := s.renderSlide(ctx, p.Slides[index], p.Style, retry.NoRetry(), log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.SlideImagesTotal.WithLabelValues("manual", string(imageFailureKind(err))).Inc()
		if generator.KindOf(err) == generator.KindUnknown {
			err = generator.NewError(generator.KindImage, err)
		}
		return nil, err
	}
	metrics.SlideImagesTotal.WithLabelValues("manual", "ok").Inc()

	p.Slides[index].ImageURL = url
	outcome = StateDone

	result := &RetryResult{Presentation: p}
	saveErr := s.store.Update(ctx, p.Clone())
	metrics.HistoryWritesTotal.WithLabelValues("update", metrics.Status(saveErr)).Inc()
	if saveErr != nil {
		log.WithField("error", saveErr.Error()).Error("Failed to save retried slide")
		result.Warning = generator.Message(generator.KindPersistence, p.Language)
	}

	log.Info("Slide image regenerated")
	return result, nil
}

func imageFailureKind(err error) generator.Kind {
	if generator.KindOf(err) == generator.KindBlocked {
		return generator.KindBlocked
	}
	return generator.KindImage
}

func progressEvent(p model.GenerationProgress) model.GenerationEvent {
	e := model.NewEvent(model.EventProgress)
	e.Progress = &p
	return e
}

// snapshotEvent publishes a deep copy so observers never share slides with the pipeline.
func snapshotEvent(p *model.Presentation, slide *int) model.GenerationEvent {
	e := model.NewEvent(model.EventSnapshot)
	e.Presentation = p.Clone()
	if slide != nil {
		i := *slide
		e.SlideIndex = &i
	}
	return e
}

func warningEvent(kind generator.Kind, lang model.Language, slide *int) model.GenerationEvent {
	e := model.NewEvent(model.EventWarning)
	e.Kind = string(kind)
	e.Message = generator.Message(kind, lang)
	if slide != nil {
		i := *slide
		e.SlideIndex = &i
	}
	return e
}

func errorEvent(kind generator.Kind, lang model.Language) *model.GenerationEvent {
	e := model.NewEvent(model.EventError)
	e.Kind = string(kind)
	e.Message = generator.Message(kind, lang)
	return &e
}
