package civicscreen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

type panicText struct{}

func (panicText) ClassifyText(context.Context, string) (Classification, error) {
	panic("model exploded")
}

// suppressedLog records OnSuppressed calls.
type suppressedLog struct {
	mu     sync.Mutex
	stages []string
	errs   []error
}

func (l *suppressedLog) record(stage string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, stage)
	l.errs = append(l.errs, err)
}

func (l *suppressedLog) has(stage string, target error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.stages {
		if s == stage && errors.Is(l.errs[i], target) {
			return true
		}
	}
	return false
}

func parkReport(id string) Report {
	return Report{
		ReportID:    id,
		Description: "park is filled with water",
		Category:    CategoryParks,
		UserID:      ptr("u1"),
	}
}

func TestSubmitAcceptsFreshReport(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&Config{})
	v := p.Submit(context.Background(), parkReport("r1"))

	if v.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", v.Status)
	}
	if v.TextCategory == nil || *v.TextCategory != CategoryParks {
		t.Errorf("TextCategory = %v, want %q", v.TextCategory, CategoryParks)
	}
	if v.ImageCategory != nil {
		t.Errorf("ImageCategory = %q, want nil", *v.ImageCategory)
	}
	if v.Category != CategoryParks || v.Priority != PriorityLow {
		t.Errorf("Category/Priority = %q/%q, want %q/low", v.Category, v.Priority, CategoryParks)
	}
	if v.Reason != "" {
		t.Errorf("Reason = %q, want empty", v.Reason)
	}
}

func TestSubmitRejectsTextDuplicate(t *testing.T) {
	t.Parallel()

	text := &mockTextClassifier{result: Classification{Category: CategoryParks, Confidence: 1}}
	p := NewPipeline(&Config{TextClassifier: text})
	ctx := context.Background()

	first := p.Submit(ctx, parkReport("r1"))
	second := p.Submit(ctx, parkReport("r2"))

	if first.Status != StatusAccepted {
		t.Fatalf("first Status = %q, want accepted", first.Status)
	}
	if second.Status != StatusRejected || second.Reason != ReasonDuplicateText {
		t.Errorf("second = %+v, want rejected duplicate_text", second)
	}
	if second.ReportID != "r2" {
		t.Errorf("ReportID = %q, want r2", second.ReportID)
	}
	if text.calls != 1 {
		t.Errorf("text classifier calls = %d, want 1", text.calls)
	}

	// Another user saying the same thing is not a text duplicate.
	other := parkReport("r3")
	other.UserID = ptr("u2")
	if v := p.Submit(ctx, other); v.Status != StatusAccepted {
		t.Errorf("other user Status = %q, want accepted", v.Status)
	}
}

func TestSubmitCategoryMismatchStillAccepted(t *testing.T) {
	t.Parallel()

	fp := &fakeFingerprinter{bits: map[string]uint64{"https://img/lamp.jpg": 0xdeadbeef}}
	image := &mockImageClassifier{result: Classification{Category: CategoryLighting, Confidence: 0.9}}
	p := NewPipeline(&Config{
		Fingerprinter:   fp,
		TextClassifier:  &mockTextClassifier{result: Classification{Category: CategoryParks, Confidence: 0.6}},
		ImageClassifier: image,
	})

	r := parkReport("r1")
	r.ImageURL = ptr("https://img/lamp.jpg")
	v := p.Submit(context.Background(), r)

	if v.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", v.Status)
	}
	if v.Category != CategoryParks {
		t.Errorf("Category = %q, want text category %q", v.Category, CategoryParks)
	}
	if v.ImageCategory == nil || *v.ImageCategory != CategoryLighting {
		t.Errorf("ImageCategory = %v, want %q", v.ImageCategory, CategoryLighting)
	}
	if fp.calls != 1 || image.calls != 1 {
		t.Errorf("fingerprint calls = %d, image calls = %d, want 1 each", fp.calls, image.calls)
	}
}

func TestSubmitRejectsImageDuplicate(t *testing.T) {
	t.Parallel()

	fp := &fakeFingerprinter{bits: map[string]uint64{
		"https://img/a.jpg": 0xff00ff00ff00ff00,
		"https://img/b.jpg": 0xff00ff00ff00ff07, // 3 bits away
		"https://img/c.jpg": 0x00ff00ff00ff00ff,
	}}
	p := NewPipeline(&Config{Fingerprinter: fp})
	ctx := context.Background()

	submit := func(id, desc, url string) Verdict {
		return p.Submit(ctx, Report{ReportID: id, Description: desc, Category: CategoryRoad, ImageURL: ptr(url)})
	}

	if v := submit("r1", "pothole on main road", "https://img/a.jpg"); v.Status != StatusAccepted {
		t.Fatalf("r1 Status = %q, want accepted", v.Status)
	}
	if v := submit("r2", "big hole near bridge", "https://img/b.jpg"); v.Reason != ReasonDuplicateImage {
		t.Errorf("r2 = %+v, want duplicate_image", v)
	}
	if v := submit("r3", "cracked asphalt", "https://img/c.jpg"); v.Status != StatusAccepted {
		t.Errorf("r3 Status = %q, want accepted", v.Status)
	}
}

func TestSubmitRejectsLocationDuplicate(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&Config{})
	ctx := context.Background()

	report := func(id, user, desc string, lon float64) Report {
		return Report{
			ReportID: id, Description: desc, Category: CategoryWater,
			UserID: ptr(user), Latitude: ptr(0.0), Longitude: ptr(lon),
		}
	}

	if v := p.Submit(ctx, report("r1", "u1", "burst pipe", 0)); v.Status != StatusAccepted {
		t.Fatalf("r1 Status = %q, want accepted", v.Status)
	}
	if v := p.Submit(ctx, report("r2", "u2", "Burst pipe ", metersToDegrees(19.99))); v.Reason != ReasonDuplicateLocation {
		t.Errorf("r2 = %+v, want duplicate_location", v)
	}
	if v := p.Submit(ctx, report("r3", "u3", "burst pipe", metersToDegrees(21))); v.Status != StatusAccepted {
		t.Errorf("r3 at 21m Status = %q, want accepted", v.Status)
	}
	if v := p.Submit(ctx, report("r4", "u4", "flooded underpass", 0)); v.Status != StatusAccepted {
		t.Errorf("r4 different text Status = %q, want accepted", v.Status)
	}

	// Latitude alone skips the location check.
	noLon := report("r5", "u5", "burst pipe", 0)
	noLon.Longitude = nil
	if v := p.Submit(ctx, noLon); v.Status != StatusAccepted {
		t.Errorf("r5 without longitude Status = %q, want accepted", v.Status)
	}
}

func TestSubmitImageFetchFailsOpen(t *testing.T) {
	t.Parallel()

	var log suppressedLog
	image := &mockImageClassifier{result: Classification{Category: CategoryLighting}}
	p := NewPipeline(&Config{
		Fingerprinter:   &fakeFingerprinter{},
		ImageClassifier: image,
		OnSuppressed:    log.record,
	})

	r := parkReport("r1")
	r.ImageURL = ptr("https://img/missing.jpg")
	v := p.Submit(context.Background(), r)

	if v.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", v.Status)
	}
	if v.ImageCategory != nil {
		t.Errorf("ImageCategory = %q, want nil", *v.ImageCategory)
	}
	if image.calls != 0 {
		t.Errorf("image classifier called %d times without bytes", image.calls)
	}
	if !log.has(StageDuplicateImage, ErrFetch) {
		t.Errorf("suppressed = %v, want fetch error at %s", log.stages, StageDuplicateImage)
	}
	if got := p.Store().Stats().Fingerprints; got != 0 {
		t.Errorf("image registry size = %d, want 0", got)
	}
}

func TestSubmitInvalidCoordinatesFailOpen(t *testing.T) {
	t.Parallel()

	var log suppressedLog
	p := NewPipeline(&Config{OnSuppressed: log.record})

	r := parkReport("r1")
	r.Latitude = ptr(math.NaN())
	r.Longitude = ptr(10.0)
	if v := p.Submit(context.Background(), r); v.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", v.Status)
	}
	if !log.has(StageDuplicateLocation, ErrInvalidCoordinates) {
		t.Errorf("suppressed = %v, want invalid coordinates", log.stages)
	}
}

func TestSubmitTextClassifierUnavailable(t *testing.T) {
	t.Parallel()

	var log suppressedLog
	p := NewPipeline(&Config{TextClassifier: UnavailableText{}, OnSuppressed: log.record})

	v := p.Submit(context.Background(), Report{ReportID: "r1", Description: "exposed wires", Category: CategorySafety})
	if v.Status != StatusAccepted {
		t.Fatalf("Status = %q, want accepted", v.Status)
	}
	if v.TextCategory != nil {
		t.Errorf("TextCategory = %q, want nil", *v.TextCategory)
	}
	if v.Category != CategorySafety || v.Priority != PriorityHigh {
		t.Errorf("Category/Priority = %q/%q, want report category with high priority", v.Category, v.Priority)
	}
	if !log.has(StageClassifyText, ErrClassificationUnavailable) {
		t.Errorf("suppressed = %v, want unavailable at %s", log.stages, StageClassifyText)
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	t.Parallel()

	var log suppressedLog
	sink := &memorySink{}
	p := NewPipeline(&Config{TextClassifier: panicText{}, OnSuppressed: log.record, Sink: sink})

	v := p.Submit(context.Background(), Report{ReportID: "r1", Description: "dark street", Category: CategoryLighting})
	if v.Status != StatusAccepted || v.Category != CategoryLighting {
		t.Errorf("verdict = %+v, want accepted with report category", v)
	}
	if len(log.stages) != 1 || log.stages[0] != StagePanic {
		t.Errorf("suppressed stages = %v, want [%s]", log.stages, StagePanic)
	}
	if len(sink.records) != 1 {
		t.Errorf("sink records = %d, want 1", len(sink.records))
	}
}

func TestSubmitPersistsEveryVerdict(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	p := NewPipeline(&Config{Sink: sink})
	ctx := context.Background()

	p.Submit(ctx, parkReport("r1"))
	p.Submit(ctx, parkReport("r2"))

	if len(sink.records) != 2 {
		t.Fatalf("sink records = %d, want 2", len(sink.records))
	}
	for i, want := range []Status{StatusAccepted, StatusRejected} {
		rec := sink.records[i]
		if rec.Verdict.Status != want {
			t.Errorf("record %d status = %q, want %q", i, rec.Verdict.Status, want)
		}
		if rec.ReceivedAt.IsZero() {
			t.Errorf("record %d has zero ReceivedAt", i)
		}
		if rec.Report.ReportID != rec.Verdict.ReportID {
			t.Errorf("record %d report/verdict ids differ", i)
		}
	}
}

func TestSubmitSinkFailureKeepsVerdict(t *testing.T) {
	t.Parallel()

	var sinkErr error
	p := NewPipeline(&Config{
		Sink:        &memorySink{fail: errors.New("disk full")},
		OnSinkError: func(err error) { sinkErr = err },
	})

	v := p.Submit(context.Background(), parkReport("r1"))
	if v.Status != StatusAccepted {
		t.Errorf("Status = %q, want accepted", v.Status)
	}
	if sinkErr == nil || sinkErr.Error() != "disk full" {
		t.Errorf("OnSinkError got %v, want disk full", sinkErr)
	}
}

func TestSubmitCustomPriorities(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&Config{
		Priorities: NewPriorityTable(map[string]Priority{CategoryParks: PriorityHigh}, PriorityLow),
	})
	if v := p.Submit(context.Background(), parkReport("r1")); v.Priority != PriorityHigh {
		t.Errorf("Priority = %q, want high", v.Priority)
	}
}

func TestSubmitCallbacks(t *testing.T) {
	t.Parallel()

	var (
		stages   []string
		verdicts []Verdict
	)
	p := NewPipeline(&Config{
		Fingerprinter:   &fakeFingerprinter{bits: map[string]uint64{"https://img/a.jpg": 1}},
		ImageClassifier: &mockImageClassifier{result: Classification{Category: CategoryParks}},
		Sink:            &memorySink{},
		OnStage:         func(stage string, _ time.Duration) { stages = append(stages, stage) },
		OnVerdict:       func(v Verdict) { verdicts = append(verdicts, v) },
	})

	r := parkReport("r1")
	r.ImageURL = ptr("https://img/a.jpg")
	r.Latitude, r.Longitude = ptr(52.52), ptr(13.405)
	p.Submit(context.Background(), r)

	want := []string{
		StageDuplicateText, StageDuplicateImage, StageDuplicateLocation,
		StageClassifyText, StageClassifyImage, StagePersist,
	}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stages[%d] = %q, want %q", i, stages[i], want[i])
		}
	}
	if len(verdicts) != 1 || verdicts[0].ReportID != "r1" {
		t.Errorf("OnVerdict got %+v", verdicts)
	}
}

func TestSubmitBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&Config{})
	reports := make([]Report, 20)
	for i := range reports {
		reports[i] = Report{
			ReportID:    fmt.Sprintf("r%02d", i),
			Description: fmt.Sprintf("broken bench number %d", i),
			Category:    CategoryParks,
		}
	}

	verdicts := p.SubmitBatch(context.Background(), reports, 3)
	if len(verdicts) != len(reports) {
		t.Fatalf("got %d verdicts, want %d", len(verdicts), len(reports))
	}
	for i, v := range verdicts {
		if v.ReportID != reports[i].ReportID {
			t.Errorf("verdicts[%d].ReportID = %q, want %q", i, v.ReportID, reports[i].ReportID)
		}
		if v.Status != StatusAccepted {
			t.Errorf("verdicts[%d].Status = %q, want accepted", i, v.Status)
		}
	}
}

func TestSubmitBatchDuplicatesOneWinner(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&Config{})
	reports := make([]Report, 8)
	for i := range reports {
		reports[i] = parkReport(fmt.Sprintf("r%d", i))
	}

	accepted := 0
	for _, v := range p.SubmitBatch(context.Background(), reports, 0) {
		if v.Status == StatusAccepted {
			accepted++
		} else if v.Reason != ReasonDuplicateText {
			t.Errorf("%s reason = %q, want duplicate_text", v.ReportID, v.Reason)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}
}

func TestNewPipelineIsolatesState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := NewPipeline(nil)
	b := NewPipeline(nil)

	a.Submit(ctx, parkReport("r1"))
	if v := b.Submit(ctx, parkReport("r2")); v.Status != StatusAccepted {
		t.Errorf("second pipeline saw first pipeline's report: %+v", v)
	}
}
