package civicscreen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Pipeline stage names, as reported to OnStage and OnSuppressed.
const (
	StageDuplicateText     = "duplicate_text"
	StageDuplicateImage    = "duplicate_image"
	StageDuplicateLocation = "duplicate_location"
	StageClassifyText      = "classify_text"
	StageClassifyImage     = "classify_image"
	StagePersist           = "persist"
	StagePanic             = "panic"
)

const defaultBatchWorkers = 4

// Pipeline decides whether civic reports are admitted. It owns one
// DuplicateStore, so two pipelines never share duplicate state.
// It is safe for concurrent use.
type Pipeline struct {
	cfg          *Config
	store        *DuplicateStore
	text         TextClassifier
	image        ImageClassifier
	imageEnabled bool
	priorities   *PriorityTable
	now          func() time.Time
}

// NewPipeline resolves cfg's defaults and classifiers once and returns a
// pipeline with fresh duplicate registries.
func NewPipeline(cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()

	fp := cfg.Fingerprinter
	if fp == nil {
		fp = cfg
	}

	p := &Pipeline{
		cfg:        cfg,
		store:      NewDuplicateStore(fp),
		text:       cfg.TextClassifier,
		image:      cfg.ImageClassifier,
		priorities: cfg.Priorities,
		now:        time.Now,
	}
	if p.text == nil {
		p.text = &KeywordClassifier{}
	}
	if p.image == nil {
		p.image = UnavailableImage{}
	}
	if p.priorities == nil {
		p.priorities = DefaultPriorityTable()
	}
	p.imageEnabled = ImageAvailable(p.image)
	return p
}

// Store exposes the pipeline's duplicate registries.
func (p *Pipeline) Store() *DuplicateStore { return p.store }

// Submit runs the admission pipeline for one report and always returns a
// verdict. Duplicate checks short-circuit in order text, image, location;
// survivors are classified and accepted. The decided report is appended to
// the configured sink; a sink failure never changes the verdict.
func (p *Pipeline) Submit(ctx context.Context, r Report) Verdict {
	v, sample := p.decide(ctx, r)

	p.persist(ctx, r, v, sample)

	p.cfg.Logger.Debug("civicscreen: verdict",
		"report_id", v.ReportID, "status", v.Status, "reason", v.Reason,
		"category", v.Category, "priority", v.Priority)
	if p.cfg.OnVerdict != nil {
		p.cfg.OnVerdict(v)
	}
	return v
}

// SubmitBatch submits reports through a bounded worker pool and returns the
// verdicts in input order. Reports in one batch are checked against each
// other like any concurrent submissions: which of two duplicates wins is not
// defined. workers <= 0 uses 4.
func (p *Pipeline) SubmitBatch(ctx context.Context, reports []Report, workers int) []Verdict {
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	verdicts := make([]Verdict, len(reports))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, r := range reports {
		wg.Add(1)
		go func(i int, r Report) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			verdicts[i] = p.Submit(ctx, r)
		}(i, r)
	}
	wg.Wait()

	return verdicts
}

// decide walks RECEIVED → DUPLICATE_CHECK → CLASSIFYING → DECIDED.
// Recovers from panics so every report still gets a verdict.
func (p *Pipeline) decide(ctx context.Context, r Report) (v Verdict, sample *ImageSample) {
	defer func() {
		if rec := recover(); rec != nil {
			p.suppress(r.ReportID, StagePanic, fmt.Errorf("recovered: %v", rec))
			v = p.accept(r, CategoryAssessment{}, nil, nil)
		}
	}()

	// 1. Exact text duplicate.
	start := p.now()
	textCheck := p.store.CheckText(r.UserID, r.Description, r.Category)
	p.timed(StageDuplicateText, start)
	if textCheck.IsDuplicate() {
		return rejected(r.ReportID, ReasonDuplicateText), nil
	}

	// 2. Perceptual image duplicate.
	if r.hasImage() {
		start = p.now()
		imgCheck := p.store.CheckImage(ctx, strings.TrimSpace(*r.ImageURL), p.cfg.imageThreshold())
		p.timed(StageDuplicateImage, start)
		if imgCheck.Err != nil {
			p.suppress(r.ReportID, StageDuplicateImage, imgCheck.Err)
		}
		if imgCheck.IsDuplicate() {
			return rejected(r.ReportID, ReasonDuplicateImage), imgCheck.Sample
		}
		sample = imgCheck.Sample
	}

	// 3. Same text reported close by.
	if r.hasLocation() {
		start = p.now()
		locCheck := p.store.CheckLocation(*r.Latitude, *r.Longitude, r.Description, r.Category, p.cfg.locationThreshold())
		p.timed(StageDuplicateLocation, start)
		if locCheck.Err != nil {
			p.suppress(r.ReportID, StageDuplicateLocation, locCheck.Err)
		}
		if locCheck.IsDuplicate() {
			return rejected(r.ReportID, ReasonDuplicateLocation), sample
		}
	}

	// 4. Classification.
	textCls := p.classifyText(ctx, r)
	var imageCls *Classification
	if r.hasImage() && p.imageEnabled {
		imageCls = p.classifyImage(ctx, r, sample)
	}

	// 5-7. Merge, prioritize, accept.
	return p.accept(r, ResolveCategory(textCls, imageCls), textCls, imageCls), sample
}

func (p *Pipeline) classifyText(ctx context.Context, r Report) *Classification {
	start := p.now()
	defer p.timed(StageClassifyText, start)

	cls, err := p.text.ClassifyText(ctx, r.Description)
	if err != nil {
		p.suppress(r.ReportID, StageClassifyText, err)
		return nil
	}
	if cls.Category == "" {
		return nil
	}
	return &cls
}

func (p *Pipeline) classifyImage(ctx context.Context, r Report, sample *ImageSample) *Classification {
	if sample == nil || len(sample.Data) == 0 {
		// The duplicate check already reported why the photo is missing.
		return nil
	}

	start := p.now()
	defer p.timed(StageClassifyImage, start)

	cls, err := p.image.ClassifyImage(ctx, sample.Data, sample.MIMEType)
	if err != nil {
		p.suppress(r.ReportID, StageClassifyImage, err)
		return nil
	}
	if cls.Category == "" {
		return nil
	}
	return &cls
}

// accept builds the accepted verdict. Without any classification the
// reporter's own category stands in for priority and category.
func (p *Pipeline) accept(r Report, a CategoryAssessment, text, image *Classification) Verdict {
	category := a.Category
	if category == "" {
		category = strings.TrimSpace(r.Category)
	}

	v := Verdict{
		ReportID: r.ReportID,
		Status:   StatusAccepted,
		Priority: p.priorities.Lookup(category),
		Category: category,
	}
	if text != nil {
		v.TextCategory = ptr(text.Category)
	}
	if image != nil {
		v.ImageCategory = ptr(image.Category)
	}
	if text != nil && image != nil && !a.Agreement {
		p.cfg.Logger.Debug("civicscreen: category mismatch",
			"report_id", r.ReportID, "text_category", text.Category, "image_category", image.Category)
	}
	return v
}

func (p *Pipeline) persist(ctx context.Context, r Report, v Verdict, sample *ImageSample) {
	if p.cfg.Sink == nil {
		return
	}

	rec := Record{
		ReceivedAt: p.now().UTC(),
		Report:     r,
		Verdict:    v,
	}
	if sample != nil {
		rec.ImageMetadata = sample.Metadata
	}

	start := p.now()
	err := p.cfg.Sink.Append(ctx, rec)
	p.timed(StagePersist, start)
	if err != nil {
		p.cfg.Logger.Error("civicscreen: dataset append failed", "report_id", r.ReportID, "error", err.Error())
		if p.cfg.OnSinkError != nil {
			p.cfg.OnSinkError(err)
		}
	}
}

// suppress logs an error swallowed by the fail-open policy.
func (p *Pipeline) suppress(reportID, stage string, err error) {
	if isUnavailable(err) {
		p.cfg.Logger.Debug("civicscreen: classifier unavailable", "report_id", reportID, "stage", stage)
	} else {
		p.cfg.Logger.Warn("civicscreen: suppressed error", "report_id", reportID, "stage", stage, "error", err.Error())
	}
	if p.cfg.OnSuppressed != nil {
		p.cfg.OnSuppressed(stage, err)
	}
}

func (p *Pipeline) timed(stage string, start time.Time) {
	if p.cfg.OnStage != nil {
		p.cfg.OnStage(stage, p.now().Sub(start))
	}
}
