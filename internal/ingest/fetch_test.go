package ingest_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"callscope/internal/ingest"
	"callscope/internal/retry"
	"callscope/internal/services"
	"callscope/internal/services/convai"
	"callscope/internal/testsupport"
)

func fastPolicy() retry.Policy {
	return retry.New(3, time.Millisecond, 2*time.Millisecond)
}

func TestFetchIDsDedupesInFirstSeenOrder(t *testing.T) {
	src := testsupport.NewFakeSource()
	src.AddListing("calls", "agent_a", []string{"c1", "c2"}, []string{"c3"})
	src.AddListing("calls", "agent_b", []string{"c2", "c4"})
	src.AddListing("archive", "agent_a", []string{"c5", "c1"})

	res, err := ingest.FetchIDs(context.Background(), src, ingest.FetchOptions{
		Endpoints: []string{"calls", "archive"},
		AgentIDs:  []string{"agent_a", "agent_b"},
		PageSize:  2,
		Retry:     fastPolicy(),
	})
	if err != nil {
		t.Fatalf("FetchIDs: %v", err)
	}
	want := []string{"c1", "c2", "c3", "c4", "c5"}
	if !reflect.DeepEqual(res.IDs, want) {
		t.Fatalf("ids = %v, want %v", res.IDs, want)
	}
	if res.CheckedAPI != len(want) || res.Partial {
		t.Fatalf("checked=%d partial=%v", res.CheckedAPI, res.Partial)
	}
	if res.Agents["c2"] != "agent_a" || res.Agents["c4"] != "agent_b" {
		t.Fatalf("agent attribution wrong: %v", res.Agents)
	}
}

func TestFetchIDsKeepsPartialResults(t *testing.T) {
	src := testsupport.NewFakeSource()
	src.AddListing("calls", "agent_a", []string{"c1"})
	src.FailList("calls", "agent_b", services.Wrap(services.ErrTransient, "fake", "list", "unavailable", nil))
	src.AddListing("calls", "agent_c", []string{"c2"})

	res, err := ingest.FetchIDs(context.Background(), src, ingest.FetchOptions{
		Endpoints: []string{"calls"},
		AgentIDs:  []string{"agent_a", "agent_b", "agent_c"},
		Retry:     fastPolicy(),
	})
	if err != nil {
		t.Fatalf("FetchIDs: %v", err)
	}
	if !reflect.DeepEqual(res.IDs, []string{"c1", "c2"}) {
		t.Fatalf("ids = %v", res.IDs)
	}
	if !res.Partial || len(res.Failures) != 1 {
		t.Fatalf("expected one recorded failure, got partial=%v failures=%v", res.Partial, res.Failures)
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(res.Failures[0], &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("expected retries to be exhausted, got %v", res.Failures[0])
	}
	// one call each for a and c, three attempts for b
	if got := src.ListCalls(); got != 5 {
		t.Fatalf("list calls = %d, want 5", got)
	}
}

func TestFetchIDsStopsAtMaxPages(t *testing.T) {
	src := testsupport.NewFakeSource()
	src.AddListing("calls", "", []string{"c1"}, []string{"c2"}, []string{"c3"})

	res, err := ingest.FetchIDs(context.Background(), src, ingest.FetchOptions{
		Endpoints: []string{"calls"},
		MaxPages:  2,
		Retry:     fastPolicy(),
	})
	if err != nil {
		t.Fatalf("FetchIDs: %v", err)
	}
	if !reflect.DeepEqual(res.IDs, []string{"c1", "c2"}) || res.Pages != 2 {
		t.Fatalf("ids=%v pages=%d", res.IDs, res.Pages)
	}
}

func TestFetchIDsReturnsContextError(t *testing.T) {
	src := testsupport.NewFakeSource()
	src.AddListing("calls", "", []string{"c1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ingest.FetchIDs(ctx, src, ingest.FetchOptions{Endpoints: []string{"calls"}, Retry: fastPolicy()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !res.Partial {
		t.Fatal("expected partial result")
	}
}

// cancelAfterList cancels the run once the named endpoint has served a page.
type cancelAfterList struct {
	*testsupport.FakeSource
	endpoint string
	cancel   context.CancelFunc
}

func (c *cancelAfterList) ListPage(ctx context.Context, endpoint string, req convai.PageRequest) (*convai.Page, error) {
	page, err := c.FakeSource.ListPage(ctx, endpoint, req)
	if endpoint == c.endpoint {
		c.cancel()
	}
	return page, err
}

func TestFetchIDsCountsIDsWhenCancelledBetweenListings(t *testing.T) {
	fake := testsupport.NewFakeSource()
	fake.AddListing("e1", "", []string{"a", "b"})
	fake.AddListing("e2", "", []string{"c"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelAfterList{FakeSource: fake, endpoint: "e1", cancel: cancel}

	res, err := ingest.FetchIDs(ctx, src, ingest.FetchOptions{
		Endpoints: []string{"e1", "e2"},
		Retry:     fastPolicy(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !reflect.DeepEqual(res.IDs, []string{"a", "b"}) {
		t.Fatalf("ids = %v, want [a b]", res.IDs)
	}
	if res.CheckedAPI != 2 || !res.Partial {
		t.Fatalf("checked=%d partial=%v, want 2 and partial", res.CheckedAPI, res.Partial)
	}
}
