package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/adapter"
	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/dedupe"
	memorypublisher "github.com/surfacehub/contractor-aggregator/internal/publisher/memory"
	"github.com/surfacehub/contractor-aggregator/internal/registry"
	"github.com/surfacehub/contractor-aggregator/internal/store/memory"
)

type stubClock struct{}

func (stubClock) Now() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) NewID() (string, error) {
	return fmt.Sprintf("id-%04d", g.n.Add(1)), nil
}

// capturingSink records every raw candidate handed to the audit path.
type capturingSink struct {
	mu      sync.Mutex
	records []contractor.CandidateRecord
}

func (s *capturingSink) Record(_ context.Context, _ string, rec contractor.CandidateRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakePool fails every acquire; registry-html sources must never reach it.
type fakePool struct {
	acquires   atomic.Int64
	acquireErr error
}

func (p *fakePool) Acquire(context.Context) (contractor.Session, error) {
	p.acquires.Add(1)
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return nil, fmt.Errorf("%w: no session", contractor.ErrPoolTimeout)
}

func (p *fakePool) Release(contractor.Session) {}
func (p *fakePool) Close()                     {}

type fixture struct {
	orch      *Orchestrator
	store     *memory.ContractorStore
	runStore  *memory.RunStore
	sink      *capturingSink
	publisher *memorypublisher.Publisher
	pool      *fakePool
}

func newFixture(t *testing.T, descs []contractor.SourceDescriptor) *fixture {
	t.Helper()
	reg, err := registry.New(descs)
	require.NoError(t, err)

	f := &fixture{
		store:     memory.NewContractorStore(),
		runStore:  memory.NewRunStore(),
		sink:      &capturingSink{},
		publisher: memorypublisher.New(),
		pool:      &fakePool{},
	}
	f.orch = New(
		reg,
		f.pool,
		f.store,
		f.runStore,
		f.sink,
		f.publisher,
		stubClock{},
		&seqIDGen{},
		dedupe.Config{},
		adapter.Deps{Clock: stubClock{}, Logger: zap.NewNop()},
		Config{Workers: 2, DefaultTimeout: 30 * time.Second, SampleSize: 5, EventTopic: "runs.completed"},
		zap.NewNop(),
	)
	return f
}

func registrySource(id string, baseURL string) contractor.SourceDescriptor {
	return contractor.SourceDescriptor{
		ID:          id,
		Category:    contractor.CategoryPublicRegistry,
		URLTemplate: baseURL + "/" + id + "?city={city}",
		Locator:     contractor.LocatorRegistryHTML,
		RateRPS:     100,
		RateBurst:   10,
		MaxPages:    1,
	}
}

func listingPage(entries ...[2]string) string {
	page := `<html><body>`
	for _, e := range entries {
		page += fmt.Sprintf(
			`<div class="row"><span class="biz">%s</span><span class="tel">%s</span></div>`,
			e[0], e[1],
		)
	}
	return page + `</body></html>`
}

func withListingSelectors(d contractor.SourceDescriptor) contractor.SourceDescriptor {
	d.Selectors = contractor.SelectorSet{Item: "div.row", Name: "span.biz", Phone: "span.tel"}
	return d
}

func servePages(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunBatchMergesAcrossSources(t *testing.T) {
	t.Parallel()

	srv := servePages(t, map[string]string{
		"/board-a": listingPage(
			[2]string{"Acme Granite", "602-555-0147"},
			[2]string{"Bravo Surfaces", "480-555-0101"},
			[2]string{"Canyon Stone", "480-555-0102"},
		),
		"/board-b": listingPage(
			[2]string{"ACME GRANITE LLC", "(602) 555-0147"},
			[2]string{"Desert Tile", "480-555-0103"},
		),
	})

	f := newFixture(t, []contractor.SourceDescriptor{
		withListingSelectors(registrySource("board-a", srv.URL)),
		withListingSelectors(registrySource("board-b", srv.URL)),
	})

	result, err := f.orch.RunBatch(context.Background(), contractor.CategoryPublicRegistry, "Phoenix, AZ", 0)
	require.NoError(t, err)

	run := result.Run
	require.Equal(t, contractor.RunStatusSucceeded, run.Status)
	require.Equal(t, 2, run.Stats.SourcesAttempted)
	require.Zero(t, run.Stats.SourcesFailed)
	require.Equal(t, 5, run.Stats.CandidatesSeen)
	require.Equal(t, 4, run.Stats.RecordsCreated)
	require.Equal(t, 1, run.Stats.RecordsMerged)
	require.Zero(t, run.Stats.RecordsSkipped)
	require.Empty(t, run.Errors)
	require.NotNil(t, run.Finished)
	require.Len(t, result.SampleRecords, 4, "the merged record collapses into its original sample")

	// The two Acme listings share a phone and collapse into one canonical
	// record carrying both provenance entries.
	stored, err := f.store.List(context.Background(), contractor.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, stored, 4)
	acme, err := f.store.GetByIdentityKey(context.Background(), "phone:6025550147")
	require.NoError(t, err)
	require.NotNil(t, acme)
	require.Len(t, acme.Provenance, 2)

	// Static registries never borrow a browser.
	require.Zero(t, f.pool.acquires.Load())

	// Every raw candidate reached the audit sink.
	require.Equal(t, 5, f.sink.count())

	// The run record is persisted and a completion event published.
	persisted, err := f.runStore.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, contractor.RunStatusSucceeded, persisted.Status)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs.completed", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, run.ID, payload["run_id"])
	require.Equal(t, string(contractor.RunStatusSucceeded), payload["status"])
}

func TestRunBatchBlockedSourceIsPartial(t *testing.T) {
	t.Parallel()

	srv := servePages(t, map[string]string{
		"/board-a": listingPage([2]string{"Acme Granite", "602-555-0147"}),
		"/board-b": `<html><body><h1>Access Denied</h1></body></html>`,
	})

	f := newFixture(t, []contractor.SourceDescriptor{
		withListingSelectors(registrySource("board-a", srv.URL)),
		withListingSelectors(registrySource("board-b", srv.URL)),
	})

	result, err := f.orch.RunBatch(context.Background(), contractor.CategoryPublicRegistry, "", 0)
	require.NoError(t, err)

	run := result.Run
	require.Equal(t, contractor.RunStatusPartial, run.Status)
	require.Equal(t, 1, run.Stats.SourcesFailed)
	require.Equal(t, 1, run.Stats.RecordsCreated)
	require.Len(t, run.Errors, 1)
	require.Equal(t, "board-b", run.Errors[0].SourceID)
	require.Equal(t, contractor.KindBlockedBySource, run.Errors[0].Kind)
}

func TestRunBatchPoolFailureIsPartial(t *testing.T) {
	t.Parallel()

	srv := servePages(t, map[string]string{
		"/board-a": listingPage([2]string{"Acme Granite", "602-555-0147"}),
	})

	browserSource := contractor.SourceDescriptor{
		ID:          "dealer-locator",
		Category:    contractor.CategoryPublicRegistry,
		URLTemplate: "https://example.com/dealers?city={city}",
		Locator:     contractor.LocatorSelector,
		Selectors:   contractor.SelectorSet{Item: "div.row", Name: "span.biz"},
		MaxPages:    1,
	}
	f := newFixture(t, []contractor.SourceDescriptor{
		withListingSelectors(registrySource("board-a", srv.URL)),
		browserSource,
	})

	result, err := f.orch.RunBatch(context.Background(), contractor.CategoryPublicRegistry, "", 0)
	require.NoError(t, err)

	run := result.Run
	require.Equal(t, contractor.RunStatusPartial, run.Status)
	require.Equal(t, 2, run.Stats.SourcesAttempted)
	require.Equal(t, 1, run.Stats.SourcesFailed)
	require.Equal(t, 1, run.Stats.RecordsCreated, "the healthy source still lands its records")
	require.Equal(t, int64(1), f.pool.acquires.Load())
	require.Len(t, run.Errors, 1)
	require.Equal(t, "dealer-locator", run.Errors[0].SourceID)
	require.Equal(t, contractor.KindPoolTimeout, run.Errors[0].Kind)
}

func TestRunBatchDeadlineAborts(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(listingPage([2]string{"Acme Granite", "602-555-0147"})))
	}))
	t.Cleanup(slow.Close)

	f := newFixture(t, []contractor.SourceDescriptor{
		withListingSelectors(registrySource("board-a", slow.URL)),
	})

	result, err := f.orch.RunBatch(context.Background(), contractor.CategoryPublicRegistry, "", 50*time.Millisecond)
	require.NoError(t, err)

	run := result.Run
	require.Equal(t, contractor.RunStatusAborted, run.Status)
	require.Equal(t, 1, run.Stats.SourcesAborted)
	require.Zero(t, run.Stats.SourcesFailed, "a deadline is not a source defect")
	require.Len(t, run.Errors, 1)
	require.Equal(t, contractor.KindAborted, run.Errors[0].Kind)
}

func TestRunBatchInvalidCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.orch.RunBatch(context.Background(), "landscaping", "", 0)
	require.ErrorIs(t, err, contractor.ErrInvalidCategory)
	require.Empty(t, f.publisher.Messages())
}

func TestRunBatchSkipsUnusableCandidates(t *testing.T) {
	t.Parallel()

	// Second row has no phone and no resolvable city, so the normalizer
	// rejects it for lack of identity.
	srv := servePages(t, map[string]string{
		"/board-a": listingPage(
			[2]string{"Acme Granite", "602-555-0147"},
			[2]string{"Mystery Business", ""},
		),
	})

	f := newFixture(t, []contractor.SourceDescriptor{
		withListingSelectors(registrySource("board-a", srv.URL)),
	})

	result, err := f.orch.RunBatch(context.Background(), contractor.CategoryPublicRegistry, "", 0)
	require.NoError(t, err)

	run := result.Run
	require.Equal(t, contractor.RunStatusSucceeded, run.Status)
	require.Equal(t, 2, run.Stats.CandidatesSeen)
	require.Equal(t, 1, run.Stats.RecordsCreated)
	require.Equal(t, 1, run.Stats.RecordsSkipped)
}

func TestThrottleUnknownSourceDoesNotBlock(t *testing.T) {
	t.Parallel()

	th := NewThrottle(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 10; i++ {
		require.NoError(t, th.Wait(ctx, "anything"))
	}
}

func TestThrottleHonorsContext(t *testing.T) {
	t.Parallel()

	th := NewThrottle([]contractor.SourceDescriptor{
		{ID: "slow-source", RateRPS: 0.01, RateBurst: 1},
	})
	ctx := context.Background()
	require.NoError(t, th.Wait(ctx, "slow-source"), "burst token is free")

	// The next token is ~100s out, far past the deadline, so Wait fails
	// without wrapping context.DeadlineExceeded. It must still classify as
	// aborted, not as a source defect.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := th.Wait(short, "slow-source")
	require.Error(t, err)
	require.ErrorIs(t, err, contractor.ErrAborted)
	require.Equal(t, contractor.KindAborted, contractor.Classify(err))
}
