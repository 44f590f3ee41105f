package submit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"proctored-quiz-service/internal/domain"
)

type fakeAPI struct {
	mu          sync.Mutex
	records     map[string]domain.AttemptRecord
	submitErrs  []error
	checkErr    error
	checkCalls  int
	submitCalls int
}

func newFakeAPI(errs ...error) *fakeAPI {
	return &fakeAPI{records: make(map[string]domain.AttemptRecord), submitErrs: errs}
}

func (f *fakeAPI) AttemptIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkCalls++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	var ids []string
	for id, rec := range f.records {
		if rec.UserID == userID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeAPI) Submit(_ context.Context, sub domain.ResultSubmission) (domain.AttemptRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return domain.AttemptRecord{}, err
		}
	}
	rec := domain.AttemptRecord{ResultSubmission: sub, Partition: domain.PartitionName(sub.Username), CreatedAt: time.Now()}
	f.records[sub.AttemptID] = rec
	return rec, nil
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) Notify(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

func (l *noticeLog) count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, notice := range l.notices {
		if notice.Level == level {
			n++
		}
	}
	return n
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func sampleSubmission() domain.ResultSubmission {
	return domain.ResultSubmission{
		UserID:         "user_1",
		Username:       "Solanki Singha",
		Topic:          "C Programming",
		TotalQuestions: 15,
		CorrectAnswers: 10,
		WrongAnswers:   2,
		NotAttempted:   3,
		TimeTaken:      300,
		AttemptID:      "attempt-1",
	}
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	api := newFakeAPI(errors.New("connection reset"), errors.New("502 bad gateway"))
	log := &noticeLog{}
	var delays []time.Duration
	p := New(api, log, Options{After: func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		return immediate(d)
	}})

	outcome, err := p.Submit(context.Background(), sampleSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusSaved || outcome.Attempts != 3 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(api.records) != 1 || api.submitCalls != 3 {
		t.Fatalf("expected one record after three attempts, records=%d calls=%d", len(api.records), api.submitCalls)
	}
	if log.count(LevelProgress) != 3 || log.count(LevelError) != 2 || log.count(LevelSuccess) != 1 {
		t.Fatalf("unexpected notices %+v", log.notices)
	}
	if len(delays) != 2 || delays[0] != DefaultRetryDelay {
		t.Fatalf("expected two default retry delays, got %v", delays)
	}
}

func TestPipelineSecondSubmitSkipsNetwork(t *testing.T) {
	api := newFakeAPI()
	p := New(api, nil, Options{After: immediate})

	if _, err := p.Submit(context.Background(), sampleSubmission()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	checks, submits := api.checkCalls, api.submitCalls

	outcome, err := p.Submit(context.Background(), sampleSubmission())
	if err != nil || outcome.Status != StatusAlreadySaved {
		t.Fatalf("expected already saved, got %+v err=%v", outcome, err)
	}
	if api.checkCalls != checks || api.submitCalls != submits {
		t.Fatalf("second submit touched the network")
	}
	if !p.Succeeded() {
		t.Fatalf("expected pipeline to report success")
	}
}

func TestPipelineRemountDetectsExistingAttempt(t *testing.T) {
	api := newFakeAPI()
	if _, err := New(api, nil, Options{After: immediate}).Submit(context.Background(), sampleSubmission()); err != nil {
		t.Fatalf("first mount: %v", err)
	}

	log := &noticeLog{}
	outcome, err := New(api, log, Options{After: immediate}).Submit(context.Background(), sampleSubmission())
	if err != nil {
		t.Fatalf("second mount: %v", err)
	}
	if outcome.Status != StatusAlreadySaved {
		t.Fatalf("expected already saved, got %s", outcome.Status)
	}
	if api.submitCalls != 1 || len(api.records) != 1 {
		t.Fatalf("expected a single write, calls=%d records=%d", api.submitCalls, len(api.records))
	}
}

func TestPipelineDuplicateFromStoreCountsAsSaved(t *testing.T) {
	api := newFakeAPI(domain.ErrDuplicateAttempt)
	outcome, err := New(api, nil, Options{After: immediate}).Submit(context.Background(), sampleSubmission())
	if err != nil || outcome.Status != StatusAlreadySaved || outcome.Attempts != 1 {
		t.Fatalf("expected duplicate to be treated as saved, got %+v err=%v", outcome, err)
	}
}

func TestPipelineInvalidCountsNeverRetried(t *testing.T) {
	api := newFakeAPI()
	sub := sampleSubmission()
	sub.NotAttempted = 1
	p := New(api, nil, Options{After: func(time.Duration) <-chan time.Time {
		t.Fatalf("invalid submission must not schedule a retry")
		return nil
	}})

	outcome, err := p.Submit(context.Background(), sub)
	if !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("expected invalid result, got %v", err)
	}
	if outcome.Attempts != 1 || api.submitCalls != 0 {
		t.Fatalf("expected rejection on first attempt without a write, got %+v calls=%d", outcome, api.submitCalls)
	}
}

func TestPipelineServerValidationNotRetried(t *testing.T) {
	api := newFakeAPI(domain.ErrInvalidResult, nil)
	p := New(api, nil, Options{After: immediate})
	_, err := p.Submit(context.Background(), sampleSubmission())
	if !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("expected invalid result, got %v", err)
	}
	if api.submitCalls != 1 || p.Succeeded() {
		t.Fatalf("expected a single rejected call, got %d", api.submitCalls)
	}
}

func TestPipelineGivesUpAtCeiling(t *testing.T) {
	boom := errors.New("503")
	api := newFakeAPI(boom, boom, boom, nil)
	log := &noticeLog{}
	_, err := New(api, log, Options{After: immediate}).Submit(context.Background(), sampleSubmission())
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
	if api.submitCalls != DefaultMaxAttempts || len(api.records) != 0 {
		t.Fatalf("expected %d calls and no record, got %d", DefaultMaxAttempts, api.submitCalls)
	}
	if log.count(LevelError) != DefaultMaxAttempts+1 {
		t.Fatalf("expected per-attempt errors plus final failure, got %+v", log.notices)
	}
}

func TestPipelineCheckFailureIsTransient(t *testing.T) {
	api := newFakeAPI()
	api.checkErr = errors.New("timeout")
	_, err := New(api, nil, Options{MaxAttempts: 2, After: immediate}).Submit(context.Background(), sampleSubmission())
	if !errors.Is(err, domain.ErrSubmissionFailed) || api.checkCalls != 2 || api.submitCalls != 0 {
		t.Fatalf("expected two failed checks, err=%v checks=%d submits=%d", err, api.checkCalls, api.submitCalls)
	}
}

func TestPipelineCancelAbandonsRetry(t *testing.T) {
	api := newFakeAPI(errors.New("offline"))
	ctx, cancel := context.WithCancel(context.Background())
	p := New(api, nil, Options{After: func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}})

	outcome, err := p.Submit(ctx, sampleSubmission())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if outcome.Attempts != 1 || api.submitCalls != 1 {
		t.Fatalf("expected no attempt after teardown, got %+v calls=%d", outcome, api.submitCalls)
	}
}
